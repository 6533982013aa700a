package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/courier/testkit"
)

func TestRedisCache(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	ctx := context.Background()

	prefix := "courier:test:" + testkit.NewID() + ":"
	c, err := New(&Config{Driver: DriverRedis, Prefix: prefix},
		WithRedisConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, c.Set(ctx, "forever", []byte("v"), -1))
	ttl, err := conn.GetClient().TTL(ctx, prefix+"forever").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "key must not expire")

	require.NoError(t, c.Expire(ctx, "k", 0))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
}
