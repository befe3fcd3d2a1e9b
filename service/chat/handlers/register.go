package handlers

import "ChatRelay/service/chat"

// RegisterAll attaches every inbound event handler to s.
func RegisterAll(s *chat.Server) error {
	s.Register(
		NewJoinHandler(),
		NewLeaveHandler(),
		NewSendMessageHandler(),
		NewTypingStartHandler(),
		NewTypingStopHandler(),
		NewPresenceOnlineHandler(),
		NewPresenceOfflineHandler(),
		NewPingHandler(),
	)
	return s.Disp().Verify()
}
