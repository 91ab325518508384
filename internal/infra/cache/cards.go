// Package cache memoizes rendered cards in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"eventcard/internal/domain"
	"eventcard/internal/infra/logging"
)

const (
	keyPrefix  = "cardcache:"
	opTimeout  = time.Second
	defaultTTL = time.Minute
)

// Cards stores rendered PNGs keyed by the layout that produced them.
type Cards struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCards wraps rdb. A non-positive ttl falls back to one minute.
func NewCards(rdb *redis.Client, ttl time.Duration) *Cards {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cards{rdb: rdb, ttl: ttl}
}

// NewClient connects to Redis at addr using database db.
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// Key derives the cache key for a layout rendered by engine. Everything that
// changes the pixels is part of the hash.
func Key(engine string, l domain.Layout) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(engine)
	write(l.Illustration.URL)
	write(l.Avatar.Src)
	for _, line := range l.Lines {
		write(line.Text)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached card for key. Misses and Redis errors both report
// ok=false; errors are logged.
func (c *Cards) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, false
	}
	logging.Info("Card cache hit", "key", key)
	return data, true
}

// Set stores data under key. Failures are logged and otherwise ignored.
func (c *Cards) Set(ctx context.Context, key string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
