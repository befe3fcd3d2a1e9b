package handlers

import (
	"strings"

	"ChatRelay/service/chat"
	"ChatRelay/service/room"
	"ChatRelay/tools/errs"
)

type JoinHandler struct{}

func NewJoinHandler() chat.Handler       { return JoinHandler{} }
func (JoinHandler) Kind() chat.EventKind { return chat.KindJoinRoom }
func (JoinHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, in chat.Inbound) error {
	id, err := conversationID(in)
	if err != nil {
		return err
	}
	ctx.S.Rooms().Join(conn.SnowID, room.ForConversation(id))
	ctx.S.Reply(conn, chat.KindRoomJoined, chat.RoomPayload{ConversationID: id})
	return nil
}

type LeaveHandler struct{}

func NewLeaveHandler() chat.Handler       { return LeaveHandler{} }
func (LeaveHandler) Kind() chat.EventKind { return chat.KindLeaveRoom }
func (LeaveHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, in chat.Inbound) error {
	id, err := conversationID(in)
	if err != nil {
		return err
	}
	ctx.S.Rooms().Leave(conn.SnowID, room.ForConversation(id))
	ctx.S.Reply(conn, chat.KindRoomLeft, chat.RoomPayload{ConversationID: id})
	return nil
}

// conversationID 取出并校验 conversationId（兼容 chatId 等别名）
func conversationID(in chat.Inbound) (string, error) {
	p, err := chat.DecodePayload[chat.RoomPayload](in.Payload)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(p.ConversationID)
	if id == "" {
		return "", errs.ErrValidation.WrapMsg("conversationId is required")
	}
	return id, nil
}
