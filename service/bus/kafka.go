package bus

import (
	"context"
	"sync"
	"time"

	"ChatRelay/service/kafka"

	"github.com/pkg/errors"
)

// KafkaTopicPrefix prefixes every kafka topic: chat.message, chat.typing, ...
const KafkaTopicPrefix = "chat."

const kafkaReadyWait = 30 * time.Second

type kafkaTransport struct {
	client *kafka.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewKafkaTransport joins a consumer group named after the relay so that each
// relay reads every partition. publishTimeout caps every producer round trip.
func NewKafkaTransport(brokers []string, relayID string, publishTimeout time.Duration) (Transport, error) {
	conf := kafka.DefaultConfig(brokers, "chat-relay-"+relayID)
	conf.PublishTimeout = publishTimeout
	c, err := kafka.NewClient(conf)
	if err != nil {
		return nil, err
	}
	return &kafkaTransport{client: c}, nil
}

func (k *kafkaTransport) Start(ctx context.Context, topics []Topic, deliver DeliverFunc) error {
	names := make([]string, 0, len(topics))
	router := kafka.NewRouter()
	for _, t := range topics {
		topic := t
		name := KafkaTopicPrefix + string(topic)
		names = append(names, name)
		router.Register(name, func(_ string, _ []byte, value []byte) error {
			deliver(topic, value)
			return nil
		})
	}
	if err := k.client.EnsureTopics(names); err != nil {
		return errors.Wrap(err, "kafka ensure topics")
	}

	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ready, done := k.client.Consume(cctx, router)
	k.mu.Lock()
	k.cancel, k.done = cancel, done
	k.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-time.After(kafkaReadyWait):
		// no assignment yet; the group keeps rejoining in the background
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (k *kafkaTransport) Publish(ctx context.Context, msg Outbound) error {
	return k.client.SendSyncCtx(ctx, KafkaTopicPrefix+string(msg.Topic), msg.Key, msg.Data)
}

func (k *kafkaTransport) Close() error {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := k.client.Close()
	if done != nil {
		<-done
	}
	return err
}
