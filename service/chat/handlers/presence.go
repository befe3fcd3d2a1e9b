package handlers

import (
	"strings"

	"ChatRelay/service/bus"
	"ChatRelay/service/chat"
)

type PresenceHandler struct {
	kind   chat.EventKind
	status string
}

func NewPresenceOnlineHandler() chat.Handler {
	return PresenceHandler{kind: chat.KindPresenceOnline, status: bus.StatusOnline}
}

func NewPresenceOfflineHandler() chat.Handler {
	return PresenceHandler{kind: chat.KindPresenceOffline, status: bus.StatusOffline}
}

func (h PresenceHandler) Kind() chat.EventKind { return h.kind }

// Handle 发布一条 presence，接收方按房间并集去重，空列表同样发布
func (h PresenceHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, in chat.Inbound) error {
	p, err := chat.DecodePayload[chat.PresenceRequest](in.Payload)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(p.ConversationIDs))
	seen := make(map[string]struct{}, len(p.ConversationIDs))
	for _, id := range p.ConversationIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	_ = ctx.S.Bus().Publish(bus.TopicPresence, "", bus.PresencePayload{
		UserID:          conn.UserID(),
		Status:          h.status,
		ConversationIDs: ids,
	}, bus.Origin{UserID: conn.UserID(), ConnID: conn.SnowID})
	return nil
}
