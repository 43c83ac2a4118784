package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_PingsOnConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rs, err := NewRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	assert.NoError(t, rs.Ping(ctx))

	mr.Close()
	assert.ErrorContains(t, rs.Ping(ctx), "pinging redis")
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "mysql://nope")
	assert.ErrorContains(t, err, "parsing redis URL")
}

func TestRedisKeysShareNamespace(t *testing.T) {
	for _, key := range []string{RedisSaltKey, RedisInvalidationChannel, RedisLockPrefix} {
		assert.Regexp(t, "^"+RedisKeyPrefix, key)
	}
}
