package cache

import (
	"context"
	"testing"
	"time"

	"github.com/safar/stock-ledger/internal/config"
	"github.com/stretchr/testify/assert"
)

var _ Cache = (*RedisCache)(nil)

func TestGenerateKey(t *testing.T) {
	c := &RedisCache{serviceName: "stock-ledger"}
	assert.Equal(t, "stock-ledger:order:42", c.GenerateKey("order", "42"))
}

func TestNewRedisCacheFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, config.RedisConfig{Addr: "127.0.0.1:1"}, "stock-ledger")
	assert.Error(t, err)
}
