// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package scriptstore implements the store clients luamodule scripts are
// registered with and evaluated on: Redis, and an in-memory store which runs
// scripts in an embedded Lua interpreter.
package scriptstore

import (
	"errors"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
)

// Supported script store backends.
const (
	RedisBackendName  = "redis"
	MemoryBackendName = "memory"
)

// ErrNoScript is returned when a script is evaluated by digest, the store
// does not know it and the handle carries no source to fall back to.
var ErrNoScript = errors.New("NOSCRIPT no matching script")

// Client is a script store connection. Besides evaluating scripts directly
// it hands out batches which queue evaluations until Exec.
type Client interface {
	luamodule.Conn

	// Pipeline returns a new, empty batch executing on this client.
	Pipeline() luamodule.Batch

	// Name returns the name of the backend.
	Name() string

	// Close releases the resources held by the client.
	Close() error
}

// finishBatch applies the post-processing hooks of a batch to its raw
// results. Slots that failed hold their error. The first error is
// returned alongside the results.
func finishBatch(raw []any, errs []error, hooks map[int]luamodule.PostProcessFunc) ([]any, error) {
	var firstErr error
	results := make([]any, len(raw))
	for i := range raw {
		v, err := raw[i], errs[i]
		if err == nil {
			if hook, ok := hooks[i]; ok {
				v, err = hook(v)
			}
		}
		if err != nil {
			results[i] = err
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[i] = v
	}
	return results, firstErr
}

func toInterfaces(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
