package kafka

import (
	"errors"
	"fmt"

	"ChatRelay/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics 不存在就按 cfg 创建；已存在且分区数不足时扩分区（Kafka 只能增加分区）。
func (c *Client) EnsureTopics(topics []string) error {
	if !c.cfg.AutoCreateTopics {
		return nil
	}
	admin, err := sarama.NewClusterAdmin(c.cfg.Brokers, BuildBaseConfig(c.cfg))
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	defer admin.Close()
	return EnsureTopicsWith(admin, topics, c.cfg)
}

func EnsureTopicsWith(admin sarama.ClusterAdmin, topics []string, cfg Config) error {
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

		minISR := "1"
		if cfg.ReplicationFactor >= 3 {
			minISR = "2"
		}

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     cfg.PartitionsPerTopic,
				ReplicationFactor: cfg.ReplicationFactor,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
					continue
				}
				if errors.Is(err, sarama.ErrTopicAlreadyExists) {
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			logger.Log.Info("kafka topic created", zap.String("topic", t),
				zap.Int32("partitions", cfg.PartitionsPerTopic), zap.Int16("rf", cfg.ReplicationFactor))
			continue
		}

		curParts := int32(len(descs[0].Partitions))
		if cfg.PartitionsPerTopic > curParts {
			if err := admin.CreatePartitions(t, cfg.PartitionsPerTopic, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, curParts, cfg.PartitionsPerTopic, err)
			}
			logger.Log.Info("kafka partitions expanded", zap.String("topic", t),
				zap.Int32("from", curParts), zap.Int32("to", cfg.PartitionsPerTopic))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
