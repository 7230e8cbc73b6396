package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.PollMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ReloadDebounce)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "3")
	t.Setenv("RELOAD_DEBOUNCE", "nonsense")
	t.Setenv("KAFKA_WORKERS", "-2")

	cfg := Load()
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.PollMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ReloadDebounce, "bad duration falls back")
	assert.Equal(t, 4, cfg.KafkaWorkers, "non-positive int falls back")
}
