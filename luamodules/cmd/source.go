// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
)

func newSourceCmd(rt *runtime) *cobra.Command {
	var showSHA bool
	cmd := &cobra.Command{
		Use:   "source <module>",
		Short: "Print the linked script of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.populate(); err != nil {
				return err
			}
			m, err := rt.module(args[0])
			if err != nil {
				return err
			}

			src := m.Source()
			if showSHA {
				fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n", luamodule.NewHandle(src).SHA)
			}
			fmt.Fprint(cmd.OutOrStdout(), src)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSHA, "sha", false, "Print the script digest as a leading comment")
	return cmd
}
