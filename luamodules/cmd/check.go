// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newCheckCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check [module...]",
		Short: "Compile the linked scripts of modules to find syntax errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.populate(); err != nil {
				return err
			}
			modules, err := rt.selected(args)
			if err != nil {
				return err
			}

			ok := color.New(color.FgGreen).SprintFunc()
			fail := color.New(color.FgRed, color.Bold).SprintFunc()

			var errs error
			for _, m := range modules {
				if err := m.Check(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", fail("FAIL"), m.Name(), err)
					errs = multierr.Append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ok("OK"), m.Name())
			}
			if errs != nil {
				return fmt.Errorf("%d of %d modules failed to compile", len(multierr.Errors(errs)), len(modules))
			}
			return nil
		},
	}
}
