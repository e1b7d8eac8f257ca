// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"strings"
)

// ParseFunction builds a FunctionSpec from a parameter list written in a
// Lua-like notation and a body:
//
//	a, b            two required parameters
//	a, b, c=nil     c may be omitted by callers
//	a, ...          unlimited trailing arguments, collected in "arg"
//	a, ...rest      unlimited trailing arguments, collected in "rest"
//
// The list may be wrapped in parentheses. Defaults other than nil,
// destructuring patterns and keyword parameters are rejected.
func ParseFunction(signature, body string) (FunctionSpec, error) {
	var (
		params        []string
		firstOptional = -1
		opts          []FunctionOption
	)

	sig := strings.TrimSpace(signature)
	if strings.HasPrefix(sig, "(") && strings.HasSuffix(sig, ")") {
		sig = strings.TrimSpace(sig[1 : len(sig)-1])
	}
	if sig == "" {
		return NewFunctionSpec(nil, body)
	}

	entries := strings.Split(sig, ",")
	for i, raw := range entries {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			return FunctionSpec{}, definitionErrorf("empty parameter at position %d", i)

		case strings.HasPrefix(entry, "**"), entry == "*", strings.Contains(entry, ":"):
			return FunctionSpec{}, definitionErrorf("keyword parameter %q is not supported", entry)

		case strings.HasPrefix(entry, "..."):
			if i != len(entries)-1 {
				return FunctionSpec{}, definitionErrorf("variadic parameter %q must be the last parameter", entry)
			}
			name := strings.TrimSpace(strings.TrimPrefix(entry, "..."))
			if name != "" && !isIdentifier(name) {
				return FunctionSpec{}, definitionErrorf("unsupported variadic name %q", name)
			}
			opts = append(opts, Variadic(name))

		case strings.HasPrefix(entry, "*"):
			return FunctionSpec{}, definitionErrorf("unsupported variadic name %q, use ...name", entry)

		case strings.HasPrefix(entry, "{"), strings.HasPrefix(entry, "["), strings.HasPrefix(entry, "("):
			return FunctionSpec{}, definitionErrorf("destructuring parameter %q is not supported", entry)

		case strings.Contains(entry, "="):
			name, def, _ := strings.Cut(entry, "=")
			name, def = strings.TrimSpace(name), strings.TrimSpace(def)
			if !isIdentifier(name) {
				return FunctionSpec{}, definitionErrorf("parameter %q is not a valid Lua identifier", name)
			}
			if def != "nil" {
				return FunctionSpec{}, definitionErrorf("parameter %q has default %q, only nil is supported", name, def)
			}
			if firstOptional == -1 {
				firstOptional = len(params)
			}
			params = append(params, name)

		default:
			if !isIdentifier(entry) {
				return FunctionSpec{}, definitionErrorf("parameter %q is not a valid Lua identifier", entry)
			}
			if firstOptional != -1 {
				return FunctionSpec{}, definitionErrorf("required parameter %q follows an optional parameter", entry)
			}
			params = append(params, entry)
		}
	}

	if firstOptional != -1 {
		opts = append(opts, OptionalFrom(firstOptional))
	}
	return NewFunctionSpec(params, body, opts...)
}

// MustParseFunction is like ParseFunction but panics on error. It is meant
// for package level module declarations.
func MustParseFunction(signature, body string) FunctionSpec {
	f, err := ParseFunction(signature, body)
	if err != nil {
		panic(err)
	}
	return f
}
