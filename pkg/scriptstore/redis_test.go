// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cilium/hive/hivetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

func newTestRedisClient(t *testing.T) (*redisClient, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedisClient(rdb, hivetest.Logger(t), 0).(*redisClient)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestRedisRegisterAndEval(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisClient(t)

	h, err := c.RegisterScript(ctx, `return ARGV[1] .. ARGV[2]`)
	require.NoError(t, err)
	require.Equal(t, luamodule.NewHandle(`return ARGV[1] .. ARGV[2]`), h)

	exists, err := c.rdb.ScriptExists(ctx, h.SHA).Result()
	require.NoError(t, err)
	require.Equal(t, []bool{true}, exists)

	v, err := c.EvalScript(ctx, h, "foo", "bar")
	require.NoError(t, err)
	require.Equal(t, "foobar", v)
}

func TestRedisNilResult(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisClient(t)

	h, err := c.RegisterScript(ctx, `return nil`)
	require.NoError(t, err)
	v, err := c.EvalScript(ctx, h)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedisNoScriptFallback(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisClient(t)

	h, err := c.RegisterScript(ctx, `return 7`)
	require.NoError(t, err)
	require.NoError(t, c.rdb.ScriptFlush(ctx).Err())

	fallbacks := metrics.NoScriptFallbacks.WithLabelValues(RedisBackendName)
	before := metrics.GetCounterValue(fallbacks)

	v, err := c.EvalScript(ctx, h)
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
	require.Equal(t, before+1, metrics.GetCounterValue(fallbacks))

	require.NoError(t, c.rdb.ScriptFlush(ctx).Err())
	_, err = c.EvalScript(ctx, luamodule.Handle{SHA: h.SHA})
	require.Error(t, err)
	require.True(t, isNoScript(err))
}

func TestRedisBatch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisClient(t)
	b := c.Pipeline()

	h1, err := b.RegisterScript(ctx, `return ARGV[1]`)
	require.NoError(t, err)
	h2, err := b.RegisterScript(ctx, `return 123`)
	require.NoError(t, err)

	// Registering on a batch defers loading to Exec.
	exists, err := c.rdb.ScriptExists(ctx, h1.SHA, h2.SHA).Result()
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, exists)

	require.Equal(t, 0, b.QueueScript(ctx, h1, "first"))
	require.Equal(t, 1, b.QueueScript(ctx, h2))
	b.SetPostProcess(0, func(raw any) (any, error) {
		return raw.(string) + "!", nil
	})

	results, err := b.Exec(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{"first!", int64(123)}, results)

	exists, err = c.rdb.ScriptExists(ctx, h1.SHA, h2.SHA).Result()
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, exists)

	results, err = b.Exec(ctx)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRedisBatchErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisClient(t)
	b := c.Pipeline()

	good, err := b.RegisterScript(ctx, `return "fine"`)
	require.NoError(t, err)
	bad, err := b.RegisterScript(ctx, `return redis.error_reply("ERR broken")`)
	require.NoError(t, err)

	b.QueueScript(ctx, good)
	b.QueueScript(ctx, bad)

	results, err := b.Exec(ctx)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fine", results[0])
	assert.ErrorContains(t, results[1].(error), "broken")
}

func TestParseServerVersion(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nredis_mode:standalone\r\n"
	v, err := parseServerVersion(info)
	require.NoError(t, err)
	require.Equal(t, "7.2.4", v.String())
	require.True(t, minRequiredVersion.Check(v))

	v, err = parseServerVersion("redis_version:2.4.0\n")
	require.NoError(t, err)
	require.False(t, minRequiredVersion.Check(v))

	_, err = parseServerVersion("# Server\r\n")
	require.Error(t, err)
}
