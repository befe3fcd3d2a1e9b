package kafka

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// SendSync 同步发送；key 决定分区
func (c *Client) SendSync(topic string, key string, value []byte) error {
	return sendSync(c.producer, topic, key, value)
}

// SendSyncCtx 同 SendSync，但 ctx 结束时立即返回；发送本身仍受 PublishTimeout 约束
func (c *Client) SendSyncCtx(ctx context.Context, topic string, key string, value []byte) error {
	return sendSyncCtx(ctx, c.producer, topic, key, value)
}

func sendSyncCtx(ctx context.Context, p sarama.SyncProducer, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- sendSync(p, topic, key, value) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "kafka send %s", topic)
	}
}

func sendSync(p sarama.SyncProducer, topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	_, _, err := p.SendMessage(msg)
	return err
}
