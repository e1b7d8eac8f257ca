// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"log/slog"

	"github.com/cilium/hive/cell"
	"github.com/redis/go-redis/v9"
)

// Cell provides the script store Client selected by the configuration.
var Cell = cell.Module(
	"script-store",
	"Script store client",

	cell.Config(DefaultConfig),
	cell.Provide(newClient),
)

type clientParams struct {
	cell.In

	Logger    *slog.Logger
	Lifecycle cell.Lifecycle
	Config    Config
}

func newClient(in clientParams) (Client, error) {
	if err := in.Config.Validate(); err != nil {
		return nil, err
	}

	if in.Config.ScriptStore == MemoryBackendName {
		return NewInMemoryClient(in.Logger, in.Config.ScriptCacheSize)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        in.Config.RedisAddress,
		Password:    in.Config.RedisPassword,
		DB:          in.Config.RedisDB,
		DialTimeout: in.Config.RedisDialTimeout,
	})
	c := NewRedisClient(rdb, in.Logger, in.Config.RedisQPS).(*redisClient)

	in.Lifecycle.Append(cell.Hook{
		OnStart: func(ctx cell.HookContext) error {
			return c.checkServer(ctx)
		},
		OnStop: func(cell.HookContext) error {
			return c.Close()
		},
	})
	return c, nil
}
