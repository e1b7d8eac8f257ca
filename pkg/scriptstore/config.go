// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

const (
	// ScriptStore is the flag selecting the backend
	ScriptStore = "script-store"

	// RedisAddress is the flag for the address of the Redis server
	RedisAddress = "redis-address"

	// RedisPassword is the flag for the password of the Redis server
	RedisPassword = "redis-password"

	// RedisDB is the flag for the Redis database number
	RedisDB = "redis-db"

	// RedisQPS is the flag limiting Redis operations per second
	RedisQPS = "redis-qps"

	// RedisDialTimeout is the flag for the Redis connection timeout
	RedisDialTimeout = "redis-dial-timeout"

	// ScriptCacheSize is the flag for the compiled script cache of the
	// in-memory backend
	ScriptCacheSize = "script-cache-size"
)

// Config selects and configures the script store backend.
type Config struct {
	ScriptStore      string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
	RedisQPS         int
	RedisDialTimeout time.Duration
	ScriptCacheSize  int
}

// DefaultConfig is the default configuration of the script store.
var DefaultConfig = Config{
	ScriptStore:      RedisBackendName,
	RedisAddress:     "127.0.0.1:6379",
	RedisDB:          0,
	RedisQPS:         0,
	RedisDialTimeout: 5 * time.Second,
	ScriptCacheSize:  DefaultScriptCacheSize,
}

func (def Config) Flags(flags *pflag.FlagSet) {
	flags.String(ScriptStore, def.ScriptStore,
		fmt.Sprintf("Script store backend (%s, %s)", RedisBackendName, MemoryBackendName))
	flags.String(RedisAddress, def.RedisAddress, "Address of the Redis server")
	flags.String(RedisPassword, def.RedisPassword, "Password of the Redis server")
	flags.Int(RedisDB, def.RedisDB, "Redis database number")
	flags.Int(RedisQPS, def.RedisQPS, "Maximum Redis operations per second (0 is unlimited)")
	flags.Duration(RedisDialTimeout, def.RedisDialTimeout, "Timeout for connecting to the Redis server")
	flags.Int(ScriptCacheSize, def.ScriptCacheSize, "Number of compiled scripts cached by the in-memory store")
}

// Validate checks the configuration for consistency.
func (cfg Config) Validate() error {
	switch cfg.ScriptStore {
	case RedisBackendName:
		if cfg.RedisAddress == "" {
			return fmt.Errorf("%s must be set for the %s backend", RedisAddress, RedisBackendName)
		}
	case MemoryBackendName:
	default:
		return fmt.Errorf("unsupported script store %q; use %s or %s", cfg.ScriptStore, RedisBackendName, MemoryBackendName)
	}
	if cfg.RedisQPS < 0 {
		return fmt.Errorf("%s must not be negative", RedisQPS)
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("%s must not be negative", RedisDB)
	}
	if cfg.ScriptCacheSize <= 0 {
		return fmt.Errorf("%s must be positive", ScriptCacheSize)
	}
	return nil
}
