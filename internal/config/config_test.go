package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x?sslmode=disable")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 100, cfg.Ledger.MaxOrderPageSize)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TX_LOCK_TIMEOUT", "250ms")
	t.Setenv("TX_MAX_RETRIES", "7")
	t.Setenv("ORDERS_MAX_PAGE_SIZE", "50")
	t.Setenv("LOG_ENCODING", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.Equal(t, 7, cfg.Ledger.MaxRetries)
	assert.Equal(t, 50, cfg.Ledger.MaxOrderPageSize)
	assert.Equal(t, "console", cfg.Logger.Encoding)
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("TX_LOCK_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
}

func TestValidate(t *testing.T) {
	t.Setenv("LOG_ENCODING", "xml")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "50")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_ENCODING")
	assert.Contains(t, err.Error(), "DATABASE_MAX_IDLE_CONNS")
}
