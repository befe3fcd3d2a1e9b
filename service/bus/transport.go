package bus

import (
	"context"
	"time"

	rstore "ChatRelay/service/storage/redis"

	"github.com/pkg/errors"
)

// Outbound is one encoded envelope handed to a transport.
type Outbound struct {
	Topic Topic
	ID    string
	Key   string // partition/ordering key; the conversation or user id
	Data  []byte
}

// DeliverFunc receives raw envelope bytes from a transport. It must not block.
type DeliverFunc func(topic Topic, data []byte)

// Transport moves encoded envelopes between relay processes. Every relay
// subscribed to a topic receives every envelope published on it, including
// its own.
type Transport interface {
	// Start subscribes to topics. Subscriptions are active when it returns.
	Start(ctx context.Context, topics []Topic, deliver DeliverFunc) error
	Publish(ctx context.Context, msg Outbound) error
	Close() error
}

// DialOptions carries what the drivers need besides their endpoints.
type DialOptions struct {
	RelayID string
	// Hub is used by the memory driver; nil gets a private one.
	Hub *Hub
	// PublishTimeout bounds transport-level publish round trips (kafka).
	PublishTimeout time.Duration
}

// Dial builds the transport for a driver resolved from BUS_URL.
func Dial(driver string, endpoints []string, opts DialOptions) (Transport, error) {
	switch driver {
	case "", "memory":
		hub := opts.Hub
		if hub == nil {
			hub = NewHub()
		}
		return hub.Transport(), nil
	case "nats":
		return NewNatsTransport(endpoints, opts.RelayID)
	case "redis":
		if len(endpoints) == 0 {
			return nil, errors.New("redis bus url missing")
		}
		rdb, err := rstore.FromURL(endpoints[0])
		if err != nil {
			return nil, err
		}
		return NewRedisTransport(rdb, true), nil
	case "kafka":
		return NewKafkaTransport(endpoints, opts.RelayID, opts.PublishTimeout)
	default:
		return nil, errors.Errorf("unsupported bus driver %q", driver)
	}
}
