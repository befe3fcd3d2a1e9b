package kafka

import (
	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Client 持有同一组 broker 上的生产者与消费组
type Client struct {
	cfg      Config
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
}

func NewClient(c Config) (*Client, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	if c.GroupID == "" {
		return nil, errors.New("kafka group id missing")
	}
	sc, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	out := &Client{cfg: c, client: sc}

	if out.producer, err = sarama.NewSyncProducer(c.Brokers, BuildProducerConfig(c)); err != nil {
		_ = out.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}
	if out.group, err = sarama.NewConsumerGroupFromClient(c.GroupID, sc); err != nil {
		_ = out.Close()
		return nil, errors.Wrap(err, "kafka consumer group")
	}
	return out, nil
}

func (c *Client) Close() error {
	var err error
	if c.group != nil {
		err = multierr.Append(err, c.group.Close())
	}
	if c.producer != nil {
		err = multierr.Append(err, c.producer.Close())
	}
	if c.client != nil && !c.client.Closed() {
		err = multierr.Append(err, c.client.Close())
	}
	return err
}
