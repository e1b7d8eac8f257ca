// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
)

func newListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list [module...]",
		Short: "List the modules of the manifest and their functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.populate(); err != nil {
				return err
			}
			modules, err := rt.selected(args)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE\tFUNCTION\tARGUMENTS\tIMPORTS")
			for _, m := range modules {
				imports := importNames(m)
				for _, name := range m.Functions() {
					f, _ := m.Function(name)
					fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\n", m.Name(), name, signature(f), f.DescribeArgCountRange(), imports)
				}
			}
			return w.Flush()
		},
	}
}

func importNames(m *luamodule.Module) string {
	var out []string
	for _, imp := range m.Imports()[1:] {
		if imp.As == imp.Module.Name() {
			out = append(out, imp.As)
			continue
		}
		out = append(out, fmt.Sprintf("%s as %s", imp.Module.Name(), imp.As))
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}

func signature(f luamodule.FunctionSpec) string {
	params := f.Params()
	if i, ok := f.FirstOptional(); ok {
		for j := i; j < len(params); j++ {
			params[j] += "=nil"
		}
	}
	if f.IsVariadic() {
		params = append(params, "..."+f.VarargName())
	}
	return "(" + strings.Join(params, ", ") + ")"
}
