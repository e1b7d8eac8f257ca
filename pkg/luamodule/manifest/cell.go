// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package manifest

import (
	"log/slog"

	"github.com/cilium/hive/cell"
	"github.com/spf13/pflag"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/scriptstore"
)

// Cell provides the Set of modules declared in the configured manifest,
// bound to the script store client.
var Cell = cell.Module(
	"module-manifest",
	"Module manifest",

	cell.Config(defaultConfig),
	cell.Provide(newSet),
)

// ManifestFlag is the flag naming the manifest file.
const ManifestFlag = "manifest"

type Config struct {
	Manifest string
}

var defaultConfig = Config{}

func (def Config) Flags(flags *pflag.FlagSet) {
	flags.String(ManifestFlag, def.Manifest, "Path of the YAML file declaring the modules")
}

type setParams struct {
	cell.In

	Logger *slog.Logger
	Config Config
	Client scriptstore.Client
}

func newSet(in setParams) (*Set, error) {
	reg := luamodule.NewRegistry(luamodule.WithLogger(in.Logger))
	if in.Config.Manifest == "" {
		return (&Manifest{}).Build(reg)
	}

	m, err := Load(in.Config.Manifest)
	if err != nil {
		return nil, err
	}
	set, err := m.Build(reg, luamodule.WithClient(in.Client))
	if err != nil {
		return nil, err
	}
	in.Logger.Info("Loaded module manifest",
		logfields.Path, in.Config.Manifest,
		logfields.Count, len(set.order),
	)
	return set, nil
}
