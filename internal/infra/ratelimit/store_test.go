package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_MemoryWhenNoAddr(t *testing.T) {
	s := NewStore(RedisConfig{})
	require.NotNil(t, s)

	require.NoError(t, s.Set("k", []byte("v"), time.Minute))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestNewStore_FallsBackWhenRedisDown(t *testing.T) {
	assert.NotNil(t, NewStore(RedisConfig{Addr: "127.0.0.1:1", DB: 0}))
}

func TestNewStore_UsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewStore(RedisConfig{Addr: mr.Addr()})
	require.NotNil(t, s)
	require.NoError(t, s.Set("hits", []byte("3"), time.Minute))

	assert.True(t, mr.Exists("hits"))
}
