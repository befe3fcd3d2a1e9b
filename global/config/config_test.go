package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "relay-1", cfg.RelayID)
	assert.Equal(t, ":3001", cfg.Addr())
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, "/conversations/{id}/messages", cfg.APIMessagesPath)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, 256, cfg.SendQueueSize)

	driver, endpoints, err := cfg.Bus()
	require.NoError(t, err)
	assert.Equal(t, BusMemory, driver)
	assert.Empty(t, endpoints)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAY_ID", "relay-7")
	t.Setenv("PORT", "4100")
	t.Setenv("API_TIMEOUT", "1500ms")
	t.Setenv("MAX_CONNS_PER_USER", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "relay-7", cfg.RelayID)
	assert.Equal(t, ":4100", cfg.Addr())
	assert.Equal(t, 1500*time.Millisecond, cfg.APITimeout)
	assert.Equal(t, 3, cfg.MaxConnsPerUser)
}

func TestBusURL(t *testing.T) {
	cases := []struct {
		url       string
		driver    string
		endpoints []string
	}{
		{"memory://", BusMemory, nil},
		{"nats://a:4222,nats://b:4222", BusNats, []string{"nats://a:4222", "nats://b:4222"}},
		{"redis://localhost:6379/0", BusRedis, []string{"redis://localhost:6379/0"}},
		{"kafka://k1:9092,k2:9092", BusKafka, []string{"k1:9092", "k2:9092"}},
	}
	for _, tc := range cases {
		driver, endpoints, err := AppConfig{BusURL: tc.url}.Bus()
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.driver, driver, tc.url)
		assert.Equal(t, tc.endpoints, endpoints, tc.url)
	}
	_, _, err := AppConfig{BusURL: "amqp://x"}.Bus()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	bad := []func(*AppConfig){
		func(c *AppConfig) { c.RelayID = " " },
		func(c *AppConfig) { c.Port = 70000 },
		func(c *AppConfig) { c.NodeID = 2048 },
		func(c *AppConfig) { c.JWTSecret = "" },
		func(c *AppConfig) { c.APIMessagesPath = "/messages" },
		func(c *AppConfig) { c.BusURL = "ftp://x" },
	}
	for i, mutate := range bad {
		c := base
		mutate(&c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
