package chat

import "context"

// Handler processes one inbound event kind for a connection.
type Handler interface {
	Kind() EventKind
	Handle(ctx *ChatContext, conn *WsConn, in Inbound) error
}

// ChatContext is what a handler sees of the relay for one event.
type ChatContext struct {
	context.Context
	S *Server
}
