package bus

import (
	"encoding/json"

	"ChatRelay/tools/decode"

	"github.com/pkg/errors"
)

// Topic is a bus topic. Each transport maps it onto its own channel name.
type Topic string

const (
	TopicMessage  Topic = "message"
	TopicTyping   Topic = "typing"
	TopicPresence Topic = "presence"
	TopicChats    Topic = "chats"
)

// Topics lists every topic a relay subscribes to.
var Topics = []Topic{TopicMessage, TopicTyping, TopicPresence, TopicChats}

func (t Topic) Valid() bool {
	switch t {
	case TopicMessage, TopicTyping, TopicPresence, TopicChats:
		return true
	}
	return false
}

// Envelope is the unit carried between relays.
type Envelope struct {
	ID             string          `json:"id"`
	Topic          Topic           `json:"topic"`
	ConversationID string          `json:"conversationId,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	OriginUserID   string          `json:"originUserId,omitempty"`
	OriginRelay    string          `json:"originRelay,omitempty"`
	OriginConnID   string          `json:"originConnId,omitempty"`
	Timestamp      int64           `json:"ts"`
}

// Origin identifies who published an envelope.
type Origin struct {
	UserID string
	ConnID string
}

type TypingPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type PresencePayload struct {
	UserID          string   `json:"userId"`
	Status          string   `json:"status"`
	ConversationIDs []string `json:"conversationIds"`
}

// ChatsPayload names the users whose conversation list changed.
type ChatsPayload struct {
	UserIDs []string `json:"userIds"`
}

// legacyAliases maps the flat field names used by older publishers.
var legacyAliases = map[string]string{
	"chatId":   "conversationId",
	"chat_id":  "conversationId",
	"chatIds":  "conversationIds",
	"username": "displayName",
	"user_id":  "userId",
	"user_ids": "userIds",
}

type legacyFields struct {
	ConversationID  string   `json:"conversationId"`
	UserID          string   `json:"userId"`
	DisplayName     string   `json:"displayName"`
	IsTyping        bool     `json:"isTyping"`
	Status          string   `json:"status"`
	ConversationIDs []string `json:"conversationIds"`
	UserIDs         []string `json:"userIds"`
}

// DecodeEnvelope parses data received on topic. Besides the native envelope it
// accepts the flat shapes {chatId, message}, {chatId, userId, username,
// isTyping}, {userId, status, chatIds} and {userIds}. Legacy envelopes carry no id.
func DecodeEnvelope(topic Topic, data []byte) (Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	if _, ok := probe["payload"]; ok {
		if _, ok := probe["topic"]; ok {
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return Envelope{}, errors.Wrap(err, "decode envelope")
			}
			if env.Topic != topic {
				return Envelope{}, errors.Errorf("envelope topic %q received on %q", env.Topic, topic)
			}
			return env, nil
		}
	}
	return decodeLegacy(topic, probe, data)
}

func decodeLegacy(topic Topic, probe map[string]json.RawMessage, data []byte) (Envelope, error) {
	f, err := decode.DecodeJSON[legacyFields](data, decode.WithAliases(legacyAliases))
	if err != nil {
		return Envelope{}, errors.Wrap(err, "decode legacy envelope")
	}
	env := Envelope{Topic: topic, ConversationID: f.ConversationID}
	var payload any
	switch topic {
	case TopicMessage:
		msg, ok := probe["message"]
		if !ok || f.ConversationID == "" {
			return Envelope{}, errors.New("legacy message envelope needs chatId and message")
		}
		env.Payload = msg
		return env, nil
	case TopicTyping:
		if f.ConversationID == "" || f.UserID == "" {
			return Envelope{}, errors.New("legacy typing envelope needs chatId and userId")
		}
		env.OriginUserID = f.UserID
		payload = TypingPayload{UserID: f.UserID, DisplayName: f.DisplayName, IsTyping: f.IsTyping}
	case TopicPresence:
		if f.UserID == "" || f.Status == "" {
			return Envelope{}, errors.New("legacy presence envelope needs userId and status")
		}
		env.OriginUserID = f.UserID
		payload = PresencePayload{UserID: f.UserID, Status: f.Status, ConversationIDs: f.ConversationIDs}
	case TopicChats:
		if len(f.UserIDs) == 0 {
			return Envelope{}, errors.New("legacy chats envelope needs userIds")
		}
		payload = ChatsPayload{UserIDs: f.UserIDs}
	default:
		return Envelope{}, errors.Errorf("unknown topic %q", topic)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
