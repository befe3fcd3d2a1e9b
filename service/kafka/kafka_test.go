package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBaseConfig(t *testing.T) {
	c := DefaultConfig([]string{"localhost:9092"}, "chat-relay-r1")
	cfg := BuildBaseConfig(c)
	assert.Equal(t, sarama.CompressionSnappy, cfg.Producer.Compression)
	assert.Equal(t, sarama.OffsetNewest, cfg.Consumer.Offsets.Initial)
	assert.True(t, cfg.Producer.Return.Successes)

	c.ConsumerInitialOffset = "oldest"
	c.ProducerCompression = "none"
	cfg = BuildBaseConfig(c)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.CompressionNone, cfg.Producer.Compression)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{GroupID: "g"})
	assert.Error(t, err)
	_, err = NewClient(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestSendSync(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"a":1}` {
			return errors.New("unexpected value")
		}
		return nil
	})
	require.NoError(t, sendSync(p, "chat.message", "c1", []byte(`{"a":1}`)))
	require.NoError(t, p.Close())
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	var got []string
	r.Register("chat.typing", func(topic string, key, value []byte) error {
		got = append(got, topic+"="+string(value))
		return nil
	})
	h := newConsumerGroupHandler(r)
	h.dispatch(&sarama.ConsumerMessage{Topic: "chat.typing", Value: []byte("x")})
	h.dispatch(&sarama.ConsumerMessage{Topic: "chat.unknown", Value: []byte("y")})
	assert.Equal(t, []string{"chat.typing=x"}, got)
	assert.ElementsMatch(t, []string{"chat.typing"}, r.Topics())

	require.NoError(t, h.Setup(nil))
	require.NoError(t, h.Setup(nil))
	select {
	case <-h.ready:
	default:
		t.Fatal("ready not closed")
	}
}

func TestBuildProducerConfig(t *testing.T) {
	c := DefaultConfig([]string{"localhost:9092"}, "chat-relay-r1")
	base := BuildProducerConfig(c)
	assert.Equal(t, 30*time.Second, base.Net.WriteTimeout)

	c.PublishTimeout = 2 * time.Second
	cfg := BuildProducerConfig(c)
	assert.Equal(t, 2*time.Second, cfg.Producer.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Net.DialTimeout)
	assert.Equal(t, 2*time.Second, cfg.Net.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Net.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Metadata.Timeout)
	assert.NoError(t, cfg.Validate())
	// 消费组那一侧不受影响
	assert.Equal(t, 30*time.Second, BuildBaseConfig(c).Net.ReadTimeout)
}

// stuckProducer 模拟 broker 无响应
type stuckProducer struct {
	sarama.SyncProducer
	release chan struct{}
}

func (p *stuckProducer) SendMessage(*sarama.ProducerMessage) (int32, int64, error) {
	<-p.release
	return 0, 0, nil
}

func TestSendSyncCtxHonoursDeadline(t *testing.T) {
	p := &stuckProducer{release: make(chan struct{})}
	defer close(p.release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := sendSyncCtx(ctx, p, "chat.message", "c1", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	assert.ErrorIs(t, sendSyncCtx(done, p, "chat.message", "", nil), context.Canceled)
}

// failingGroup 每次 Consume 都立即失败，像 broker 不可达
type failingGroup struct {
	sarama.ConsumerGroup
	calls atomic.Int32
	errs  chan error
}

func (g *failingGroup) Consume(context.Context, []string, sarama.ConsumerGroupHandler) error {
	g.calls.Add(1)
	return errors.New("kafka: client has run out of available brokers")
}

func (g *failingGroup) Errors() <-chan error { return g.errs }

func TestConsumeBacksOffOnError(t *testing.T) {
	g := &failingGroup{errs: make(chan error)}
	close(g.errs)
	c := &Client{cfg: Config{ConsumeRetryWait: 100 * time.Millisecond}, group: g}

	r := NewRouter()
	r.Register("chat.message", func(string, []byte, []byte) error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	_, done := c.Consume(ctx, r)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop did not stop with ctx")
	}
	calls := g.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2))
	assert.LessOrEqual(t, calls, int32(5))
}
