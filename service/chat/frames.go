package chat

import (
	"encoding/json"
	"strings"

	"ChatRelay/tools/decode"
	"ChatRelay/tools/errs"
)

// Frame is the wire format in both directions: {"type": kind, "payload": {...}}.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// payloadAliases maps legacy field names onto the canonical ones.
var payloadAliases = map[string]string{
	"chatId":          "conversationId",
	"chat_id":         "conversationId",
	"conversation_id": "conversationId",
	"chatIds":         "conversationIds",
	"chat_ids":        "conversationIds",
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

type PresenceRequest struct {
	ConversationIDs []string `json:"conversationIds"`
}

// Inbound is a parsed client frame.
type Inbound struct {
	Name    string
	Kind    EventKind
	Payload map[string]any
}

// ParseFrame accepts {"type", "payload": {...}}, the flat form {"type", ...fields}
// and a bare string payload, which is read as a conversation id.
func ParseFrame(raw []byte) (Inbound, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Inbound{}, errs.ErrValidation.WrapMsg("frame is not a JSON object")
	}
	var name string
	if t, ok := top["type"]; ok {
		_ = json.Unmarshal(t, &name)
	}
	if name == "" {
		if t, ok := top["event"]; ok {
			_ = json.Unmarshal(t, &name)
		}
	}
	if strings.TrimSpace(name) == "" {
		return Inbound{}, errs.ErrValidation.WrapMsg("frame has no type")
	}
	in := Inbound{Name: name, Kind: ParseInboundKind(name)}

	body, hasPayload := top["payload"]
	if !hasPayload {
		body, hasPayload = top["data"]
	}
	switch {
	case hasPayload && isJSONString(body):
		var id string
		_ = json.Unmarshal(body, &id)
		in.Payload = map[string]any{"conversationId": id}
	case hasPayload && string(body) != "null":
		if err := json.Unmarshal(body, &in.Payload); err != nil {
			return in, errs.ErrValidation.WrapMsg("payload must be an object")
		}
	default:
		var flat map[string]any
		_ = json.Unmarshal(raw, &flat)
		delete(flat, "type")
		delete(flat, "event")
		in.Payload = flat
	}
	if in.Payload == nil {
		in.Payload = map[string]any{}
	}
	return in, nil
}

func isJSONString(b json.RawMessage) bool {
	s := strings.TrimSpace(string(b))
	return len(s) > 0 && s[0] == '"'
}

// DecodePayload maps a frame payload onto T, honouring the legacy field names.
func DecodePayload[T any](p map[string]any) (*T, error) {
	out, err := decode.DecodeMap[T](p, decode.WithAliases(payloadAliases))
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg(err.Error())
	}
	return out, nil
}

// EncodeFrame builds an outbound frame. payload may be a json.RawMessage.
func EncodeFrame(kind EventKind, payload any) []byte {
	var body json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		body = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			b, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		body = b
	}
	out, _ := json.Marshal(Frame{Type: kind.String(), Payload: body})
	return out
}

// ---- outbound payloads ----

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	RelayID      string `json:"relayId"`
}

type MessageErrorPayload struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type TypingOut struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	IsTyping       bool   `json:"isTyping"`
}

type PresenceOut struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorFrame renders err as an error frame for the event that caused it.
func ErrorFrame(event string, err error) []byte {
	p := ErrorPayload{Code: errs.ServerInternalError, Message: errs.ErrInternal.Msg, Event: event}
	if ce, ok := errs.AsCode(err); ok {
		p.Code = ce.Code
		p.Message = ce.Msg
		if ce.Detail != "" {
			p.Message = ce.Detail
		}
	}
	return EncodeFrame(KindError, p)
}
