package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config 连接与主题参数
type Config struct {
	Brokers               []string
	GroupID               string
	PartitionsPerTopic    int32 // 单机=1
	ReplicationFactor     int16 // 单机=1；生产=3
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	KafkaVersion          sarama.KafkaVersion
	AutoCreateTopics      bool
	PublishTimeout        time.Duration // 生产端整体上限，0 => 沿用网络默认值
	ConsumeRetryWait      time.Duration // 消费组出错后重试间隔，0 => 1s
}

// DefaultConfig 每个 relay 一个 group，保证每个 relay 都能收到全量事件
func DefaultConfig(brokers []string, groupID string) Config {
	return Config{
		Brokers:               brokers,
		GroupID:               groupID,
		PartitionsPerTopic:    1,
		ReplicationFactor:     1,
		ProducerRetries:       3,
		ProducerCompression:   "snappy",
		ConsumerInitialOffset: "newest",
		KafkaVersion:          sarama.V2_1_0_0,
		AutoCreateTopics:      true,
	}
}

func BuildBaseConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = c.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // 同一会话落同一分区，保序
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(c.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

// BuildProducerConfig 生产者单独一套超时，避免一次发送卡住 bus 写协程
func BuildProducerConfig(c Config) *sarama.Config {
	cfg := BuildBaseConfig(c)
	if c.PublishTimeout <= 0 {
		return cfg
	}
	cfg.Producer.Timeout = c.PublishTimeout
	cfg.Net.DialTimeout = c.PublishTimeout
	cfg.Net.ReadTimeout = c.PublishTimeout
	cfg.Net.WriteTimeout = c.PublishTimeout
	cfg.Metadata.Timeout = c.PublishTimeout
	return cfg
}
