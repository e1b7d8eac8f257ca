// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cilium/hive/hivetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/scriptstore"
)

type newStoreFunc func(t *testing.T) scriptstore.Client

func newMemoryStore(t *testing.T) scriptstore.Client {
	store, err := scriptstore.NewInMemoryClient(hivetest.Logger(t), 0)
	require.NoError(t, err)
	return store
}

func newRedisStore(t *testing.T) scriptstore.Client {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := scriptstore.NewRedisClient(rdb, hivetest.Logger(t), 0)
	t.Cleanup(func() { store.Close() })
	return store
}

// forEachStore runs fn against every script store backend.
func forEachStore(t *testing.T, fn func(t *testing.T, newStore newStoreFunc)) {
	for _, tc := range []struct {
		name     string
		newStore newStoreFunc
	}{
		{scriptstore.MemoryBackendName, newMemoryStore},
		{scriptstore.RedisBackendName, newRedisStore},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn(t, tc.newStore)
		})
	}
}

func newRegistry(t *testing.T, opts ...luamodule.RegistryOption) *luamodule.Registry {
	return luamodule.NewRegistry(append([]luamodule.RegistryOption{luamodule.WithLogger(hivetest.Logger(t))}, opts...)...)
}

func call(t *testing.T, m *luamodule.Module, function string, args ...any) any {
	t.Helper()
	v, err := m.Call(context.Background(), function, args...)
	require.NoError(t, err)
	return v
}

func TestBasicModule(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		reg := newRegistry(t)
		m := reg.MustNewModule("BasicModule", luamodule.Functions{
			"foo":    luamodule.MustParseFunction("a, b", "return {a, b, a + b}"),
			"bar":    luamodule.MustParseFunction("a, b, c", "return {a, BasicModule.foo(b, c)}"),
			"optarg": luamodule.MustParseFunction("a, b, c=nil", "return c"),
			"vararg": luamodule.MustParseFunction("a, b, ...rest", "return {b, rest[1]}"),
		}, luamodule.WithClient(newStore(t)))

		require.Equal(t, []any{1.0, 2.0, 3.0}, call(t, m, "foo", 1, 2))
		require.Equal(t, []any{1.0, []any{2.0, 3.0, 5.0}}, call(t, m, "bar", 1, 2, 3))
		require.Nil(t, call(t, m, "optarg", 1, 2))
		require.Equal(t, 3.0, call(t, m, "optarg", 1, 2, 3))
		require.Equal(t, []any{2.0, 3.0}, call(t, m, "vararg", 1, 2, 3, 4))
		require.Equal(t, []any{2.0}, call(t, m, "vararg", 1, 2))

		for _, args := range [][]any{nil, {1}, {1, 2, 3}} {
			_, err := m.Call(context.Background(), "foo", args...)
			var ace *luamodule.ArgCountError
			require.ErrorAs(t, err, &ace, "%d arguments", len(args))
		}
	})
}

// JSON nulls keep their position in the argument list, and results that
// reuse a table encode like in Redis.
func TestNullArgumentsAndSharedResults(t *testing.T) {
	reg := newRegistry(t)
	m := reg.MustNewModule("Nulls", luamodule.Functions{
		"second": luamodule.MustParseFunction("a, b=nil, c=nil", "return b"),
		"third":  luamodule.MustParseFunction("a, b=nil, c=nil", "return c"),
		"isnull": luamodule.MustParseFunction("a, b=nil, c=nil", "return b == cjson.null"),
		"shared": luamodule.MustParseFunction("", "local t = {1}\nreturn {t, t}"),
	}, luamodule.WithClient(newMemoryStore(t)))

	require.Nil(t, call(t, m, "second", 1, nil, 3))
	require.Equal(t, 3.0, call(t, m, "third", 1, nil, 3))
	require.Equal(t, true, call(t, m, "isnull", 1, nil, 3))
	require.Equal(t, false, call(t, m, "isnull", 1, 2, 3))
	require.Equal(t, []any{[]any{1.0}, []any{1.0}}, call(t, m, "shared"))
}

func TestImportedModules(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		reg := newRegistry(t)
		store := newStore(t)

		library := reg.MustNewModule("Library", luamodule.Functions{
			"foo": luamodule.MustParseFunction("", "return 456456"),
		})
		consumer := reg.MustNewModule("LibraryConsumer", luamodule.Functions{
			"foo":     luamodule.MustParseFunction("", "return Library.foo() + 1"),
			"aliased": luamodule.MustParseFunction("", "return AliasOfLibrary.foo() + 2"),
		}, luamodule.WithImports(library, luamodule.As(library, "AliasOfLibrary")), luamodule.WithClient(store))

		require.Equal(t, 456457.0, call(t, consumer, "foo"))
		require.Equal(t, 456458.0, call(t, consumer, "aliased"))

		v, err := library.CallWith(context.Background(), store, "foo")
		require.NoError(t, err)
		require.Equal(t, 456456.0, v)
	})
}

func TestCyclicImports(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		reg := newRegistry(t)
		store := newStore(t)

		ping := reg.MustNewModule("Ping", luamodule.Functions{
			"count": luamodule.MustParseFunction("n", "if n == 0 then return 'ping' end\nreturn Pong.count(n - 1)"),
		}, luamodule.WithClient(store))
		pong := reg.MustNewModule("Pong", luamodule.Functions{
			"count": luamodule.MustParseFunction("n", "if n == 0 then return 'pong' end\nreturn Ping.count(n - 1)"),
		}, luamodule.WithImports(ping), luamodule.WithClient(store))
		require.NoError(t, ping.AddImports(pong))

		require.Equal(t, "ping", call(t, ping, "count", 4))
		require.Equal(t, "pong", call(t, ping, "count", 3))
		require.Equal(t, "ping", call(t, pong, "count", 3))
	})
}

func TestSelfAlias(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		reg := newRegistry(t)
		m, err := reg.NewModule("Recursive", luamodule.Functions{
			"fact": luamodule.MustParseFunction("n", "if n <= 1 then return 1 end\nreturn n * Me.fact(n - 1)"),
		}, luamodule.WithClient(newStore(t)))
		require.NoError(t, err)
		require.NoError(t, m.AddImports(luamodule.As(m, "Me")))

		require.Equal(t, 120.0, call(t, m, "fact", 5))
	})
}

func TestTimestamp(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		now := time.UnixMilli(1700000000123)
		reg := newRegistry(t, luamodule.WithClock(func() time.Time { return now }))
		store := newStore(t)

		clock := reg.MustNewModule("Clock", luamodule.Functions{
			"now": luamodule.MustParseFunction("", "return "+luamodule.TimestampName),
		})
		m := reg.MustNewModule("Stamped", luamodule.Functions{
			"now": luamodule.MustParseFunction("", "return Clock.now()"),
		}, luamodule.WithImports(clock), luamodule.WithTimestamp(), luamodule.WithClient(store))

		require.Equal(t, 1700000000123.0, call(t, m, "now"))

		now = now.Add(time.Second)
		require.Equal(t, 1700000001123.0, call(t, m, "now"))
	})
}

func TestScriptErrorsPassThrough(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		reg := newRegistry(t)
		m := reg.MustNewModule("Failing", luamodule.Functions{
			"fail": luamodule.MustParseFunction("", `error("nope")`),
		}, luamodule.WithClient(newStore(t)))

		_, err := m.Call(context.Background(), "fail")
		require.ErrorContains(t, err, "nope")
	})
}

func TestBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore newStoreFunc) {
		ctx := context.Background()
		reg := newRegistry(t)
		store := newStore(t)
		m := reg.MustNewModule("BasicModule", luamodule.Functions{
			"foo": luamodule.MustParseFunction("a, b", "return {a, b, a + b}"),
		}, luamodule.WithClient(store))

		pipe := store.Pipeline()
		raw, err := pipe.RegisterScript(ctx, "return 123")
		require.NoError(t, err)
		pipe.QueueScript(ctx, raw)

		v, err := m.CallWith(ctx, pipe, "foo", 1, 2)
		require.NoError(t, err)
		require.Equal(t, pipe, v)

		results, err := pipe.Exec(ctx)
		require.NoError(t, err)
		require.Equal(t, []any{int64(123), []any{1.0, 2.0, 3.0}}, results)

		// The handle registered through the batch serves direct calls too, with
		// the same decoded result.
		require.Equal(t, results[1], call(t, m, "foo", 1, 2))
	})
}
