// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"fmt"
	"slices"
)

// Unbounded is the maximum argument count of variadic functions.
const Unbounded = -1

// defaultVarargName is the name of the table collecting variadic arguments
// when none is given. It mirrors the implicit "arg" table of Lua 5.1.
const defaultVarargName = "arg"

// FunctionSpec describes one scripted function: its parameter list and its
// body. The body is Lua source which is embedded verbatim into a function
// literal. A FunctionSpec is immutable once constructed.
type FunctionSpec struct {
	params        []string
	firstOptional int
	variadic      bool
	varargName    string
	body          string
}

// Functions maps function names to their specs.
type Functions map[string]FunctionSpec

// FunctionOption configures a FunctionSpec built by NewFunctionSpec.
type FunctionOption func(*FunctionSpec)

// OptionalFrom marks the parameters starting at index i as optional. Callers
// may omit them, in which case they are nil inside the function.
func OptionalFrom(i int) FunctionOption {
	return func(f *FunctionSpec) {
		f.firstOptional = i
	}
}

// Variadic makes the function accept any number of trailing arguments,
// collected into a table called name. An empty name selects "arg".
func Variadic(name string) FunctionOption {
	return func(f *FunctionSpec) {
		f.variadic = true
		f.varargName = name
		if name == "" {
			f.varargName = defaultVarargName
		}
	}
}

// NewFunctionSpec returns a validated FunctionSpec.
func NewFunctionSpec(params []string, body string, opts ...FunctionOption) (FunctionSpec, error) {
	f := FunctionSpec{
		params:        slices.Clone(params),
		firstOptional: -1,
		body:          body,
	}
	for _, opt := range opts {
		opt(&f)
	}
	if err := f.validate(); err != nil {
		return FunctionSpec{}, err
	}
	return f, nil
}

func (f *FunctionSpec) validate() error {
	seen := make(map[string]struct{}, len(f.params)+1)
	for _, p := range f.params {
		if !isIdentifier(p) {
			return definitionErrorf("parameter %q is not a valid Lua identifier", p)
		}
		if _, dup := seen[p]; dup {
			return definitionErrorf("duplicate parameter %q", p)
		}
		seen[p] = struct{}{}
	}
	if f.firstOptional != -1 && (f.firstOptional < 0 || f.firstOptional > len(f.params)) {
		return definitionErrorf("first optional index %d out of range [0, %d]", f.firstOptional, len(f.params))
	}
	if f.variadic {
		if !isIdentifier(f.varargName) {
			return definitionErrorf("unsupported variadic name %q", f.varargName)
		}
		if _, dup := seen[f.varargName]; dup {
			return definitionErrorf("variadic name %q repeats a parameter", f.varargName)
		}
	}
	return nil
}

// Params returns the parameter names in declaration order.
func (f FunctionSpec) Params() []string {
	return slices.Clone(f.params)
}

// FirstOptional returns the index of the first optional parameter, if any.
func (f FunctionSpec) FirstOptional() (int, bool) {
	return f.firstOptional, f.firstOptional >= 0
}

// IsVariadic reports whether the function accepts unlimited trailing
// arguments.
func (f FunctionSpec) IsVariadic() bool {
	return f.variadic
}

// VarargName returns the name of the table holding variadic arguments.
func (f FunctionSpec) VarargName() string {
	return f.varargName
}

// Body returns the Lua source of the function body.
func (f FunctionSpec) Body() string {
	return f.body
}

// ArgCountRange returns the minimum and maximum number of arguments the
// function accepts. The maximum is Unbounded for variadic functions.
func (f FunctionSpec) ArgCountRange() (minArgs, maxArgs int) {
	minArgs = len(f.params)
	if f.firstOptional >= 0 {
		minArgs = f.firstOptional
	}
	maxArgs = len(f.params)
	if f.variadic {
		maxArgs = Unbounded
	}
	return minArgs, maxArgs
}

// IsArgCountValid reports whether n arguments are accepted.
func (f FunctionSpec) IsArgCountValid(n int) bool {
	minArgs, maxArgs := f.ArgCountRange()
	return n >= minArgs && (maxArgs == Unbounded || n <= maxArgs)
}

// DescribeArgCountRange renders the accepted argument counts for
// diagnostics.
func (f FunctionSpec) DescribeArgCountRange() string {
	minArgs, maxArgs := f.ArgCountRange()
	switch {
	case maxArgs == Unbounded:
		return fmt.Sprintf("at least %d", minArgs)
	case minArgs == maxArgs:
		return fmt.Sprintf("exactly %d", minArgs)
	default:
		return fmt.Sprintf("between %d and %d", minArgs, maxArgs)
	}
}
