// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig.Validate())

	mem := DefaultConfig
	mem.ScriptStore = MemoryBackendName
	mem.RedisAddress = ""
	require.NoError(t, mem.Validate())

	tests := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.ScriptStore = "etcd" },
		"missing address":   func(c *Config) { c.RedisAddress = "" },
		"negative qps":      func(c *Config) { c.RedisQPS = -1 },
		"negative db":       func(c *Config) { c.RedisDB = -1 },
		"zero script cache": func(c *Config) { c.ScriptCacheSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
