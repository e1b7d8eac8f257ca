// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package cmd implements the luamodules command line tool, which links the
// modules of a manifest into scripts, checks them, loads them into the
// script store and calls their functions.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/cilium/hive"
	"github.com/cilium/hive/cell"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leifkb/redis-luamodules/pkg/logging"
	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/luamodule/manifest"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
	"github.com/leifkb/redis-luamodules/pkg/scriptstore"
)

// runtime is shared by the subcommands. The hive is populated lazily so
// that flags and the configuration file are applied first.
type runtime struct {
	hive *hive.Hive
	log  *slog.Logger

	cfgFile   string
	logLevel  string
	logFormat string

	modules *manifest.Set
	store   scriptstore.Client
}

func (rt *runtime) bind(set *manifest.Set, store scriptstore.Client) {
	rt.modules = set
	rt.store = store
}

// populate constructs the objects without starting them. It is enough for
// commands which never talk to the store.
func (rt *runtime) populate() error {
	return rt.hive.Populate(rt.log)
}

// run starts the hive, runs fn and stops the hive again.
func (rt *runtime) run(ctx context.Context, fn func(context.Context) error) error {
	if err := rt.hive.Start(rt.log, ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if stopErr := rt.hive.Stop(rt.log, context.Background()); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func (rt *runtime) module(name string) (*luamodule.Module, error) {
	m, ok := rt.modules.Module(name)
	if !ok {
		known := rt.modules.Names()
		sort.Strings(known)
		return nil, fmt.Errorf("no module %q in manifest (known: %v)", name, known)
	}
	return m, nil
}

// selected returns the named modules, or all of them if names is empty.
func (rt *runtime) selected(names []string) ([]*luamodule.Module, error) {
	if len(names) == 0 {
		return rt.modules.Modules(), nil
	}
	out := make([]*luamodule.Module, 0, len(names))
	for _, name := range names {
		m, err := rt.module(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// NewRootCmd returns the luamodules command with all subcommands.
func NewRootCmd() *cobra.Command {
	rt := &runtime{log: logging.DefaultSlogLogger}
	rt.hive = hive.New(
		metrics.Cell,
		scriptstore.Cell,
		manifest.Cell,

		cell.Invoke(rt.bind),
	)

	rootCmd := &cobra.Command{
		Use:          "luamodules",
		Short:        "Link Lua modules into Redis scripts and call their functions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.SetupLogging(rt.logLevel, rt.logFormat, cmd.ErrOrStderr()); err != nil {
				return err
			}
			rt.log = logging.DefaultSlogLogger.With(logfields.LogSubsys, "luamodules")

			if rt.cfgFile != "" {
				if err := readConfigFile(rt.hive.Viper(), rt.cfgFile); err != nil {
					return err
				}
				rt.log.Debug("Read configuration file", logfields.Path, rt.cfgFile)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rt.cfgFile, "config", "", "Configuration file (YAML, JSON or TOML) setting any of the flags")
	flags.StringVar(&rt.logLevel, "log-level", logging.DefaultLogLevel.String(), "Log level (debug, info, warning, error)")
	flags.StringVar(&rt.logFormat, "log-format", logging.DefaultLogFormat,
		fmt.Sprintf("Log format (%s, %s, %s, %s)", logging.LogFormatText, logging.LogFormatTextTimestamp,
			logging.LogFormatJSON, logging.LogFormatJSONTimestamp))
	rt.hive.RegisterFlags(flags)

	rootCmd.AddCommand(
		newListCmd(rt),
		newSourceCmd(rt),
		newCheckCmd(rt),
		newCallCmd(rt),
		newWarmCmd(rt),
	)
	return rootCmd
}

// readConfigFile merges the settings of path into v. Keys are flag names.
func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading configuration %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command and exits on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
