package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Bus drivers recognised in BUS_URL.
const (
	BusMemory = "memory"
	BusNats   = "nats"
	BusRedis  = "redis"
	BusKafka  = "kafka"
)

// AppConfig 进程配置，全部来自环境变量（可被命令行覆盖）
type AppConfig struct {
	RelayID string `env:"RELAY_ID" envDefault:"relay-1"` // 节点ID，参与 kafka group / presence
	NodeID  int64  `env:"NODE_ID" envDefault:"1"`        // 雪花节点号 0~1023
	Port    int    `env:"PORT" envDefault:"3001"`        // http 启动端口

	JWTSecret    string `env:"JWT_SECRET" envDefault:"your-super-secret-key"`
	JWTAlgorithm string `env:"JWT_ALGORITHM" envDefault:"HS256"`

	BusURL            string        `env:"BUS_URL"`
	BusQueueSize      int           `env:"BUS_QUEUE_SIZE" envDefault:"4096"`
	BusPublishTimeout time.Duration `env:"BUS_PUBLISH_TIMEOUT" envDefault:"3s"`
	BusDedupeTTL      time.Duration `env:"BUS_DEDUPE_TTL" envDefault:"2m"`

	APIBaseURL      string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	APIMessagesPath string        `env:"API_MESSAGES_PATH" envDefault:"/conversations/{id}/messages"`
	APITimeout      time.Duration `env:"API_TIMEOUT" envDefault:"5s"`

	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	RedisURL    string        `env:"REDIS_URL"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"2h"`

	GRPCAddr string `env:"GRPC_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	SendQueueSize   int           `env:"SEND_QUEUE_SIZE" envDefault:"256"`
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	PongWait        time.Duration `env:"PONG_WAIT" envDefault:"60s"`
	WriteWait       time.Duration `env:"WRITE_WAIT" envDefault:"10s"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	MaxConnsPerUser int           `env:"MAX_CONNS_PER_USER" envDefault:"0"`
}

// Parse reads the environment without validating, so callers can apply
// overrides first.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load parses the environment into an AppConfig and validates it.
func Load() (AppConfig, error) {
	cfg, err := Parse()
	if err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.RelayID) == "" {
		return errors.New("RELAY_ID is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("PORT out of range: %d", c.Port)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return errors.Errorf("NODE_ID must be within 0..1023, got %d", c.NodeID)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if !strings.Contains(c.APIMessagesPath, "{id}") {
		return errors.Errorf("API_MESSAGES_PATH must contain {id}: %q", c.APIMessagesPath)
	}
	if _, _, err := c.Bus(); err != nil {
		return err
	}
	return nil
}

// Addr is the HTTP listen address.
func (c AppConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Bus resolves BUS_URL into a driver name and its endpoints.
// An empty URL selects the in-process driver.
func (c AppConfig) Bus() (driver string, endpoints []string, err error) {
	raw := strings.TrimSpace(c.BusURL)
	if raw == "" {
		return BusMemory, nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parse BUS_URL %q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "memory":
		return BusMemory, nil, nil
	case "nats", "tls":
		return BusNats, splitHosts(raw), nil
	case "redis", "rediss":
		return BusRedis, []string{raw}, nil
	case "kafka":
		return BusKafka, strings.Split(u.Host, ","), nil
	default:
		return "", nil, errors.Errorf("unsupported BUS_URL scheme %q", u.Scheme)
	}
}

// splitHosts turns "nats://a:4222,nats://b:4222" into its server list.
func splitHosts(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
