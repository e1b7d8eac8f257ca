// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCallCmd(rt *runtime) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call <module> <function> [argument...]",
		Short: "Call a function of a module on the script store",
		Long: `Call a function of a module on the script store.

Every argument is a JSON value. Strings therefore need quotes:

  luamodules call Inventory add '"apples"' 3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := make([]any, 0, len(args)-2)
			for i, raw := range args[2:] {
				var v any
				if err := json.Unmarshal([]byte(raw), &v); err != nil {
					return fmt.Errorf("argument %d is not a JSON value: %w", i+1, err)
				}
				callArgs = append(callArgs, v)
			}

			if err := rt.populate(); err != nil {
				return err
			}
			m, err := rt.module(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return rt.run(ctx, func(ctx context.Context) error {
				v, err := m.CallWith(ctx, rt.store, args[1], callArgs...)
				if err != nil {
					return err
				}
				out, err := json.Marshal(v)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the call, including connecting to the store")
	return cmd
}
