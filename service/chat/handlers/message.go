package handlers

import (
	"strings"
	"time"

	"ChatRelay/service/api"
	"ChatRelay/service/bus"
	"ChatRelay/service/chat"
	"ChatRelay/service/room"

	"go.uber.org/zap"
)

const defaultMessageType = "text"

type SendMessageHandler struct{}

func NewSendMessageHandler() chat.Handler       { return SendMessageHandler{} }
func (SendMessageHandler) Kind() chat.EventKind { return chat.KindSendMessage }

// Handle 校验 -> 自动入房 -> 调用 API 落库 -> 广播 new-message。
// 任何失败只回给发送者 message-error，不发布。
func (SendMessageHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, in chat.Inbound) error {
	var convID string
	fail := func(reason string) error {
		ctx.S.Reply(conn, chat.KindMessageError, chat.MessageErrorPayload{ConversationID: convID, Error: reason})
		return nil
	}

	p, err := chat.DecodePayload[chat.SendMessagePayload](in.Payload)
	if err != nil {
		return fail("invalid payload")
	}
	convID = strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return fail("conversationId is required")
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return fail("content is required")
	}
	kind := strings.TrimSpace(p.Type)
	if kind == "" {
		kind = defaultMessageType
	}

	ctx.S.Rooms().Join(conn.SnowID, room.ForConversation(convID))

	start := time.Now()
	msg, err := ctx.S.API().CreateMessage(ctx, conn.Token, convID, content, kind)
	ctx.S.Metrics().ObserveAPI(start, err)
	if err != nil {
		ctx.S.Log().Info("create message failed",
			zap.String("conn", conn.SnowID), zap.String("conversation", convID), zap.Error(err))
		return fail(api.ErrorText(err))
	}

	_ = ctx.S.Bus().Publish(bus.TopicMessage, convID, msg.Raw, bus.Origin{UserID: conn.UserID(), ConnID: conn.SnowID})
	return nil
}
