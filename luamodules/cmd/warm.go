// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
)

func newWarmCmd(rt *runtime) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "warm [module...]",
		Short: "Load the scripts of modules into the script store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.populate(); err != nil {
				return err
			}
			modules, err := rt.selected(args)
			if err != nil {
				return err
			}

			return rt.run(cmd.Context(), func(ctx context.Context) error {
				handles := make([]luamodule.Handle, len(modules))
				g, ctx := errgroup.WithContext(ctx)
				g.SetLimit(max(concurrency, 1))
				for i, m := range modules {
					g.Go(func() error {
						h, err := m.Register(ctx, rt.store)
						if err != nil {
							return fmt.Errorf("module %s: %w", m.Name(), err)
						}
						handles[i] = h
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				for i, m := range modules {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", handles[i].SHA, m.Name())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Number of scripts loaded in parallel")
	return cmd
}
