// Package ratelimit provides the storage behind the per-client request limiter.
package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"eventcard/internal/infra/logging"
)

// RedisConfig selects the Redis instance and database for limiter counters.
type RedisConfig struct {
	Addr string
	DB   int
}

// NewStore returns a Redis-backed limiter store, or an in-memory one when no
// address is configured or Redis is unreachable. It never returns nil.
func NewStore(cfg RedisConfig) (store fiber.Storage) {
	store = memoryStorage.New()
	if cfg.Addr == "" {
		logging.Info("Using in-memory rate limit store")
		return store
	}

	// The Redis storage pings on construction and panics when it cannot connect.
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "addr", cfg.Addr, "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Database: cfg.DB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	return store
}
