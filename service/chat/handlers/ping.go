package handlers

import (
	"time"

	"ChatRelay/service/chat"
)

// PingHandler answers the application-level ping; websocket ping/pong
// keepalive is handled by the connection itself.
type PingHandler struct{}

func NewPingHandler() chat.Handler       { return PingHandler{} }
func (PingHandler) Kind() chat.EventKind { return chat.KindPing }

func (PingHandler) Handle(ctx *chat.ChatContext, conn *chat.WsConn, _ chat.Inbound) error {
	ctx.S.Reply(conn, chat.KindPong, map[string]int64{"ts": time.Now().UnixMilli()})
	return nil
}
