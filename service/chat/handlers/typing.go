package handlers

import (
	"ChatRelay/service/bus"
	"ChatRelay/service/chat"
)

type TypingHandler struct {
	kind     chat.EventKind
	isTyping bool
}

func NewTypingStartHandler() chat.Handler {
	return TypingHandler{kind: chat.KindTypingStart, isTyping: true}
}

func NewTypingStopHandler() chat.Handler {
	return TypingHandler{kind: chat.KindTypingStop, isTyping: false}
}

func (h TypingHandler) Kind() chat.EventKind { return h.kind }

func (h TypingHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, in chat.Inbound) error {
	id, err := conversationID(in)
	if err != nil {
		return err
	}
	_ = ctx.S.Bus().Publish(bus.TopicTyping, id, bus.TypingPayload{
		UserID:      conn.UserID(),
		DisplayName: conn.Principal.DisplayName,
		IsTyping:    h.isTyping,
	}, bus.Origin{UserID: conn.UserID(), ConnID: conn.SnowID})
	return nil
}
