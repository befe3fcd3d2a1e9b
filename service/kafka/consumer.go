package kafka

import (
	"context"
	"errors"
	"time"

	"ChatRelay/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	router *Router
	ready  chan struct{}
}

func newConsumerGroupHandler(r *Router) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{router: r, ready: make(chan struct{})}
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.dispatch(msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *ConsumerGroupHandler) dispatch(msg *sarama.ConsumerMessage) {
	handler, err := h.router.Get(msg.Topic)
	if err != nil {
		logger.Log.Warn("kafka no handler", zap.String("topic", msg.Topic))
		return
	}
	if err := handler(msg.Topic, msg.Key, msg.Value); err != nil {
		logger.Log.Warn("kafka handler error", zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}

// Consume 在 ctx 结束前持续消费 router 中注册的全部 topic（rebalance 后重新加入）。
// ready 在第一次 Setup 后关闭。
func (c *Client) Consume(ctx context.Context, r *Router) (ready <-chan struct{}, done <-chan struct{}) {
	h := newConsumerGroupHandler(r)
	wait := c.cfg.ConsumeRetryWait
	if wait <= 0 {
		wait = time.Second
	}
	finished := make(chan struct{})
	topics := r.Topics()

	go func() {
		for err := range c.group.Errors() {
			logger.Log.Warn("kafka consumer group error", zap.Error(err))
		}
	}()
	go func() {
		defer close(finished)
		for {
			if err := c.group.Consume(ctx, topics, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Log.Warn("kafka consume error", zap.Error(err), zap.Duration("retry", wait))
				// broker 不可达时 Consume 立刻返回，等一下再重连
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return h.ready, finished
}
