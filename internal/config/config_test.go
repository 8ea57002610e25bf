package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "store", cfg.Store.IDStore)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 90, cfg.Monitor.WarnPercent)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sql")
	t.Setenv("PERSISTENCE_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("POOL_WARN_PERCENT", "not-a-number")

	cfg := Load()

	assert.Equal(t, "sql", cfg.Store.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 90, cfg.Monitor.WarnPercent, "invalid ints fall back to the default")
}
