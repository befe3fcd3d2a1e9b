package chat

import (
	"encoding/json"
	"testing"
	"time"

	"ChatRelay/service/gate"
	"ChatRelay/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundKind(t *testing.T) {
	cases := map[string]EventKind{
		"join-room":        KindJoinRoom,
		"join_chat":        KindJoinRoom,
		"leave":            KindLeaveRoom,
		"send_message":     KindSendMessage,
		"typing:start":     KindTypingStart,
		"typing-stop":      KindTypingStop,
		"presence:online":  KindPresenceOnline,
		"presence_offline": KindPresenceOffline,
		" ping ":           KindPing,
		"new-message":      KindUnknown,
		"dance":            KindUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, ParseInboundKind(name), name)
	}
	for _, k := range InboundKinds {
		assert.True(t, k.Inbound(), k.String())
	}
	assert.False(t, KindNewMessage.Inbound())
	assert.Equal(t, "chats-updated", KindChatsUpdated.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestParseFrame(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		in, err := ParseFrame([]byte(`{"type":"join-room","payload":{"conversationId":"c1"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindJoinRoom, in.Kind)
		assert.Equal(t, "c1", in.Payload["conversationId"])
	})
	t.Run("flat", func(t *testing.T) {
		in, err := ParseFrame([]byte(`{"type":"send_message","chatId":"c2","content":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, KindSendMessage, in.Kind)
		assert.Equal(t, map[string]any{"chatId": "c2", "content": "hi"}, in.Payload)
	})
	t.Run("bare string", func(t *testing.T) {
		in, err := ParseFrame([]byte(`{"event":"join_chat","data":"c3"}`))
		require.NoError(t, err)
		assert.Equal(t, KindJoinRoom, in.Kind)
		assert.Equal(t, "c3", in.Payload["conversationId"])
	})
	t.Run("null payload", func(t *testing.T) {
		in, err := ParseFrame([]byte(`{"type":"ping","payload":null}`))
		require.NoError(t, err)
		assert.NotNil(t, in.Payload)
	})
	t.Run("unknown kind keeps name", func(t *testing.T) {
		in, err := ParseFrame([]byte(`{"type":"dance"}`))
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, in.Kind)
		assert.Equal(t, "dance", in.Name)
	})
	for _, bad := range []string{`nope`, `[1,2]`, `{"payload":{}}`, `{"type":"join-room","payload":[1]}`} {
		_, err := ParseFrame([]byte(bad))
		assert.True(t, errs.ErrValidation.Is(err), bad)
	}
}

func TestDecodePayloadAliases(t *testing.T) {
	p, err := DecodePayload[SendMessagePayload](map[string]any{"chat_id": 7.0, "content": "hey"})
	require.NoError(t, err)
	assert.Equal(t, "7", p.ConversationID)
	assert.Equal(t, "hey", p.Content)

	pr, err := DecodePayload[PresenceRequest](map[string]any{"chatIds": []any{"a", 2.0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2"}, pr.ConversationIDs)

	// canonical name wins over an alias
	rp, err := DecodePayload[RoomPayload](map[string]any{"conversationId": "x", "chatId": "y"})
	require.NoError(t, err)
	assert.Equal(t, "x", rp.ConversationID)
}

func TestEncodeFrame(t *testing.T) {
	raw := json.RawMessage(`{"id":1,"content":"hi"}`)
	assert.JSONEq(t, `{"type":"new-message","payload":{"id":1,"content":"hi"}}`, string(EncodeFrame(KindNewMessage, raw)))
	assert.JSONEq(t, `{"type":"chats-updated","payload":{}}`, string(EncodeFrame(KindChatsUpdated, struct{}{})))
	assert.JSONEq(t,
		`{"type":"presence","payload":{"userId":"u1","status":"offline"}}`,
		string(EncodeFrame(KindPresence, PresenceOut{UserID: "u1", Status: "offline"})))
}

func TestErrorFrame(t *testing.T) {
	var f struct {
		Type    string       `json:"type"`
		Payload ErrorPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(ErrorFrame("join-room", errs.ErrValidation.WrapMsg("conversationId is required")), &f))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, ErrorPayload{Code: errs.ValidationError, Message: "conversationId is required", Event: "join-room"}, f.Payload)

	require.NoError(t, json.Unmarshal(ErrorFrame("ping", assert.AnError), &f))
	assert.Equal(t, errs.ServerInternalError, f.Payload.Code)
}

type nopHandler EventKind

func (h nopHandler) Kind() EventKind                           { return EventKind(h) }
func (nopHandler) Handle(*ChatContext, *WsConn, Inbound) error { return nil }

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	d.Register(nopHandler(KindPing))
	err := d.Verify()
	require.Error(t, err)
	assert.Equal(t,
		"no handler for: join-room, leave-room, presence-offline, presence-online, send-message, typing-start, typing-stop",
		err.Error())

	for _, k := range InboundKinds {
		d.Register(nopHandler(k))
	}
	assert.NoError(t, d.Verify())

	err = d.Dispatch(&ChatContext{}, nil, Inbound{Name: "dance", Kind: KindUnknown})
	assert.True(t, errs.ErrValidation.Is(err))
	assert.NoError(t, d.Dispatch(&ChatContext{}, nil, Inbound{Name: "ping", Kind: KindPing}))
}

func testConn(id, user string, at time.Time) *WsConn {
	conf := ConnConf{SendQueue: 2}
	conf.norm()
	return newWsConn(id, gate.Principal{UserID: user}, "tok", nil, conf, at)
}

func TestConnManagerEvictsOldest(t *testing.T) {
	m := NewConnManager(ManagerConf{MaxPerUser: 2})
	t0 := time.Now()
	a := testConn("a", "u1", t0)
	b := testConn("b", "u1", t0.Add(time.Second))
	c := testConn("c", "u1", t0.Add(2*time.Second))
	other := testConn("x", "u2", t0)

	assert.Empty(t, m.Add(b))
	assert.Empty(t, m.Add(a))
	assert.Empty(t, m.Add(other))
	evicted := m.Add(c)
	require.Len(t, evicted, 1)
	assert.Equal(t, "a", evicted[0].SnowID)

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 3, m.Count())
	ids := []string{}
	for _, w := range m.ListUserConns("u1") {
		ids = append(ids, w.SnowID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	assert.True(t, m.Remove("b"))
	assert.False(t, m.Remove("b"))
	assert.False(t, m.Remove("a"))
	assert.Len(t, m.ListUserConns("u1"), 1)
}

func TestConnManagerUnlimited(t *testing.T) {
	m := NewConnManager(ManagerConf{})
	for i := 0; i < 5; i++ {
		assert.Empty(t, m.Add(testConn(string(rune('a'+i)), "u1", time.Now())))
	}
	assert.Equal(t, 5, m.Count())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	c := testConn("a", "u1", time.Now())
	var drops int
	c.onDrop = func() { drops++ }

	assert.True(t, c.Enqueue([]byte("1")))
	assert.True(t, c.Enqueue([]byte("2")))
	assert.False(t, c.Enqueue([]byte("3")))
	assert.Equal(t, uint64(1), c.Dropped())
	assert.Equal(t, 1, drops)

	c.Close(1000, "")
	assert.False(t, c.Enqueue([]byte("4")))
	assert.Equal(t, uint64(1), c.Dropped())
}
