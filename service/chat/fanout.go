package chat

import (
	"context"
	"encoding/json"

	"ChatRelay/service/bus"
	"ChatRelay/service/room"

	"go.uber.org/zap"
)

// subscribeBus wires bus topics to local delivery. Must run before the bus starts.
func (s *Server) subscribeBus() {
	s.bus.Subscribe(bus.TopicMessage, s.onMessage)
	s.bus.Subscribe(bus.TopicTyping, s.onTyping)
	s.bus.Subscribe(bus.TopicPresence, s.onPresence)
	s.bus.Subscribe(bus.TopicChats, s.onChats)
}

func (s *Server) onMessage(_ context.Context, env bus.Envelope) {
	if env.ConversationID == "" {
		s.log.Warn("message envelope without conversation", zap.String("id", env.ID))
		return
	}
	frame := EncodeFrame(KindNewMessage, env.Payload)
	s.deliver(s.rooms.Members(room.ForConversation(env.ConversationID)), frame, nil)
}

func (s *Server) onTyping(_ context.Context, env bus.Envelope) {
	var p bus.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || env.ConversationID == "" {
		s.log.Warn("bad typing envelope", zap.String("id", env.ID), zap.Error(err))
		return
	}
	if p.UserID == "" {
		p.UserID = env.OriginUserID
	}
	frame := EncodeFrame(KindTyping, TypingOut{
		ConversationID: env.ConversationID,
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		IsTyping:       p.IsTyping,
	})
	s.deliver(s.rooms.Members(room.ForConversation(env.ConversationID)), frame, s.originOf(env))
}

func (s *Server) onPresence(_ context.Context, env bus.Envelope) {
	var p bus.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.log.Warn("bad presence envelope", zap.String("id", env.ID), zap.Error(err))
		return
	}
	if p.UserID == "" {
		p.UserID = env.OriginUserID
	}
	if p.Status != bus.StatusOnline && p.Status != bus.StatusOffline {
		s.log.Warn("bad presence status", zap.String("id", env.ID), zap.String("status", p.Status))
		return
	}
	convs := p.ConversationIDs
	if env.ConversationID != "" {
		convs = append(convs, env.ConversationID)
	}
	// 多个房间的成员取并集，每个连接最多收到一次
	seen := make(map[string]struct{})
	var targets []string
	for _, id := range convs {
		for _, connID := range s.rooms.Members(room.ForConversation(id)) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			targets = append(targets, connID)
		}
	}
	frame := EncodeFrame(KindPresence, PresenceOut{UserID: p.UserID, Status: p.Status})
	s.deliver(targets, frame, s.originOf(env))
}

func (s *Server) onChats(_ context.Context, env bus.Envelope) {
	var p bus.ChatsPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.log.Warn("bad chats envelope", zap.String("id", env.ID), zap.Error(err))
		return
	}
	frame := EncodeFrame(KindChatsUpdated, struct{}{})
	for _, uid := range p.UserIDs {
		s.deliver(s.rooms.Members(room.ForUser(uid)), frame, nil)
	}
}

// originOf matches the connection that published env on this relay.
func (s *Server) originOf(env bus.Envelope) func(*WsConn) bool {
	if env.OriginRelay != s.relayID || env.OriginConnID == "" {
		return nil
	}
	return func(c *WsConn) bool { return c.SnowID == env.OriginConnID }
}

// deliver enqueues frame on each listed local connection. Never blocks.
func (s *Server) deliver(connIDs []string, frame []byte, skip func(*WsConn) bool) {
	for _, id := range connIDs {
		c, ok := s.conns.Get(id)
		if !ok {
			continue
		}
		if skip != nil && skip(c) {
			continue
		}
		c.Enqueue(frame)
	}
}
