package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisChannelPrefix is shared with the earlier relays: chat:message, chat:typing, chat:presence.
const RedisChannelPrefix = "chat:"

type redisTransport struct {
	rdb       *redis.Client
	ownClient bool

	mu sync.Mutex
	ps *redis.PubSub
	wg sync.WaitGroup
}

// NewRedisTransport publishes and subscribes over redis pub/sub. When
// ownClient is set, Close also closes rdb.
func NewRedisTransport(rdb *redis.Client, ownClient bool) Transport {
	return &redisTransport{rdb: rdb, ownClient: ownClient}
}

func redisChannel(t Topic) string { return RedisChannelPrefix + string(t) }

func (r *redisTransport) Start(ctx context.Context, topics []Topic, deliver DeliverFunc) error {
	channels := make([]string, 0, len(topics))
	for _, t := range topics {
		channels = append(channels, redisChannel(t))
	}
	ps := r.rdb.Subscribe(ctx, channels...)
	// wait for every subscription to be confirmed
	for range channels {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return errors.Wrap(err, "redis subscribe")
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			_ = ps.Close()
			return errors.Errorf("redis subscribe: unexpected %T", msg)
		}
	}

	r.mu.Lock()
	r.ps = ps
	r.mu.Unlock()

	ch := ps.Channel()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for m := range ch {
			deliver(Topic(strings.TrimPrefix(m.Channel, RedisChannelPrefix)), []byte(m.Payload))
		}
	}()
	return nil
}

func (r *redisTransport) Publish(ctx context.Context, msg Outbound) error {
	return r.rdb.Publish(ctx, redisChannel(msg.Topic), msg.Data).Err()
}

func (r *redisTransport) Close() error {
	r.mu.Lock()
	ps := r.ps
	r.ps = nil
	r.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
	}
	r.wg.Wait()
	if r.ownClient {
		if cerr := r.rdb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
