// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"fmt"
	"strings"
)

// emitModuleLocked writes the declaration block of m. The block opens a
// scope binding every import alias, the module's own name included, to the
// table of the imported module, so that function bodies can call
// "Alias.fn()". It then fills the module's own table with its functions.
//
// idents maps every module of the closure to its table identifier.
func emitModuleLocked(b *strings.Builder, m *Module, idents map[ModuleID]string) {
	b.WriteString("do\n")
	fmt.Fprintf(b, "\tlocal %s\n", strings.Join(m.importAliasesLocked(), ", "))
	for _, e := range m.imports {
		fmt.Fprintf(b, "\t%s = %s\n", e.alias, idents[e.target])
	}

	own := idents[m.id]
	for _, name := range m.Functions() {
		emitFunction(b, own, name, m.functions[name])
	}
	b.WriteString("end\n")
}

// emitFunction writes the assignment of f into table under name. The body
// goes on lines of its own so that a trailing line comment cannot swallow
// the closing "end".
func emitFunction(b *strings.Builder, table, name string, f FunctionSpec) {
	params := f.params
	if f.variadic {
		params = append(params[:len(params):len(params)], "...")
	}
	fmt.Fprintf(b, "\t%s[%s] = function(%s)\n", table, quote(name), strings.Join(params, ", "))
	if f.variadic {
		fmt.Fprintf(b, "\t\tlocal %s = {...}\n", f.varargName)
	}
	b.WriteString(f.body)
	if !strings.HasSuffix(f.body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("\tend\n")
}
