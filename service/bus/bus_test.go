package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) handle(_ context.Context, env Envelope) {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func startBus(t *testing.T, hub *Hub, relay string) *Bus {
	t.Helper()
	b := New(hub.Transport(), Options{RelayID: relay, QueueSize: 64})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishReachesEveryRelay(t *testing.T) {
	hub := NewHub()
	b1 := startBus(t, hub, "r1")
	b2 := startBus(t, hub, "r2")

	var c1, c2 collector
	b1.Subscribe(TopicMessage, c1.handle)
	b2.Subscribe(TopicMessage, c2.handle)

	require.NoError(t, b1.Publish(TopicMessage, "c1", map[string]string{"content": "hi"}, Origin{UserID: "u1", ConnID: "k1"}))

	require.Eventually(t, func() bool {
		return len(c1.snapshot()) == 1 && len(c2.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	env := c2.snapshot()[0]
	assert.Equal(t, TopicMessage, env.Topic)
	assert.Equal(t, "c1", env.ConversationID)
	assert.Equal(t, "u1", env.OriginUserID)
	assert.Equal(t, "r1", env.OriginRelay)
	assert.Equal(t, "k1", env.OriginConnID)
	assert.NotEmpty(t, env.ID)
	assert.JSONEq(t, `{"content":"hi"}`, string(env.Payload))
}

func TestPublishOrderFromOnePublisher(t *testing.T) {
	hub := NewHub()
	b1 := startBus(t, hub, "r1")
	b2 := startBus(t, hub, "r2")
	var got collector
	b2.Subscribe(TopicTyping, got.handle)

	for i := 0; i < 20; i++ {
		require.NoError(t, b1.Publish(TopicTyping, "c1", map[string]int{"n": i}, Origin{}))
	}
	require.Eventually(t, func() bool { return len(got.snapshot()) == 20 }, time.Second, 5*time.Millisecond)
	for i, env := range got.snapshot() {
		var p map[string]int
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, i, p["n"])
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	hub := NewHub()
	b := startBus(t, hub, "r1")
	var msgs, typing collector
	b.Subscribe(TopicMessage, msgs.handle)
	b.Subscribe(TopicTyping, typing.handle)

	require.NoError(t, b.Publish(TopicTyping, "c1", TypingPayload{UserID: "u1", IsTyping: true}, Origin{}))
	require.Eventually(t, func() bool { return len(typing.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, msgs.snapshot())
}

func TestDuplicateEnvelopeDeliveredOnce(t *testing.T) {
	hub := NewHub()
	b := startBus(t, hub, "r1")
	var got collector
	b.Subscribe(TopicMessage, got.handle)

	data, err := json.Marshal(Envelope{ID: "same", Topic: TopicMessage, ConversationID: "c1", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	b.receive(TopicMessage, data)
	b.receive(TopicMessage, data)

	assert.Len(t, got.snapshot(), 1)
	assert.EqualValues(t, 1, b.Stats().Duplicates)
}

type failingTransport struct {
	mu    sync.Mutex
	calls int
}

func (f *failingTransport) Start(context.Context, []Topic, DeliverFunc) error { return nil }
func (f *failingTransport) Publish(context.Context, Outbound) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("broker down")
}
func (f *failingTransport) Close() error { return nil }

func TestTransportFailureIsSwallowed(t *testing.T) {
	tr := &failingTransport{}
	b := New(tr, Options{RelayID: "r1"})
	require.NoError(t, b.Start(context.Background()))

	assert.NoError(t, b.Publish(TopicMessage, "c1", map[string]string{}, Origin{}))
	require.Eventually(t, func() bool { return b.Stats().Dropped == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Close())

	tr.mu.Lock()
	assert.Equal(t, 1, tr.calls)
	tr.mu.Unlock()
	assert.EqualValues(t, 0, b.Stats().Published)
}

func TestQueueFullDrops(t *testing.T) {
	b := New(&failingTransport{}, Options{RelayID: "r1", QueueSize: 1})
	// not started: nothing drains the queue
	require.NoError(t, b.Publish(TopicMessage, "c1", map[string]string{}, Origin{}))
	err := b.Publish(TopicMessage, "c1", map[string]string{}, Origin{})
	assert.Error(t, err)
	assert.EqualValues(t, 1, b.Stats().Dropped)
	require.NoError(t, b.Close())

	assert.Error(t, b.Publish(TopicMessage, "c1", map[string]string{}, Origin{}))
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	hub := NewHub()
	b := startBus(t, hub, "r1")
	var got collector
	b.Subscribe(TopicPresence, func(context.Context, Envelope) { panic("boom") })
	b.Subscribe(TopicPresence, got.handle)

	require.NoError(t, b.Publish(TopicPresence, "", PresencePayload{UserID: "u1", Status: StatusOnline}, Origin{}))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCloseFlushesQueue(t *testing.T) {
	hub := NewHub()
	var got collector
	observer := startBus(t, hub, "r2")
	observer.Subscribe(TopicMessage, got.handle)

	b := New(hub.Transport(), Options{RelayID: "r1"})
	require.NoError(t, b.Start(context.Background()))
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(TopicMessage, "c1", map[string]int{"n": i}, Origin{}))
	}
	require.NoError(t, b.Close())
	assert.Len(t, got.snapshot(), 10)
}

func TestPublishRejectsInvalidRawPayload(t *testing.T) {
	b := New(&failingTransport{}, Options{})
	defer b.Close()
	assert.Error(t, b.Publish(TopicMessage, "c1", json.RawMessage(`{`), Origin{}))
}
