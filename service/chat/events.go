package chat

import "strings"

// EventKind is the closed set of client event kinds.
type EventKind int

const (
	KindUnknown EventKind = iota

	// inbound
	KindJoinRoom
	KindLeaveRoom
	KindSendMessage
	KindTypingStart
	KindTypingStop
	KindPresenceOnline
	KindPresenceOffline
	KindPing

	// outbound
	KindConnected
	KindRoomJoined
	KindRoomLeft
	KindNewMessage
	KindMessageError
	KindTyping
	KindPresence
	KindChatsUpdated
	KindError
	KindPong
)

var kindNames = map[EventKind]string{
	KindJoinRoom:        "join-room",
	KindLeaveRoom:       "leave-room",
	KindSendMessage:     "send-message",
	KindTypingStart:     "typing-start",
	KindTypingStop:      "typing-stop",
	KindPresenceOnline:  "presence-online",
	KindPresenceOffline: "presence-offline",
	KindPing:            "ping",

	KindConnected:    "connected",
	KindRoomJoined:   "room-joined",
	KindRoomLeft:     "room-left",
	KindNewMessage:   "new-message",
	KindMessageError: "message-error",
	KindTyping:       "typing",
	KindPresence:     "presence",
	KindChatsUpdated: "chats-updated",
	KindError:        "error",
	KindPong:         "pong",
}

// InboundKinds lists every kind a client may send. Each must have a handler.
var InboundKinds = []EventKind{
	KindJoinRoom, KindLeaveRoom, KindSendMessage,
	KindTypingStart, KindTypingStop,
	KindPresenceOnline, KindPresenceOffline,
	KindPing,
}

// older clients
var kindAliases = map[string]EventKind{
	"join_chat":        KindJoinRoom,
	"join":             KindJoinRoom,
	"leave_chat":       KindLeaveRoom,
	"leave":            KindLeaveRoom,
	"send_message":     KindSendMessage,
	"typing:start":     KindTypingStart,
	"typing_start":     KindTypingStart,
	"typing:stop":      KindTypingStop,
	"typing_stop":      KindTypingStop,
	"presence:online":  KindPresenceOnline,
	"presence_online":  KindPresenceOnline,
	"presence:offline": KindPresenceOffline,
	"presence_offline": KindPresenceOffline,
}

var inboundByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(InboundKinds)+len(kindAliases))
	for _, k := range InboundKinds {
		m[kindNames[k]] = k
	}
	for alias, k := range kindAliases {
		m[alias] = k
	}
	return m
}()

func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k EventKind) Inbound() bool {
	return k >= KindJoinRoom && k <= KindPing
}

// ParseInboundKind resolves a wire name or alias. Unknown names yield KindUnknown.
func ParseInboundKind(name string) EventKind {
	if k, ok := inboundByName[strings.TrimSpace(name)]; ok {
		return k
	}
	return KindUnknown
}
