// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"strings"
)

// reservedMarker prefixes and suffixes names which are reserved for
// management operations and generated identifiers.
const reservedMarker = "_"

var luaKeywords = map[string]struct{}{
	"and": {}, "break": {}, "do": {}, "else": {}, "elseif": {}, "end": {},
	"false": {}, "for": {}, "function": {}, "goto": {}, "if": {}, "in": {},
	"local": {}, "nil": {}, "not": {}, "or": {}, "repeat": {}, "return": {},
	"then": {}, "true": {}, "until": {}, "while": {},
}

// isIdentifier reports whether s is a Lua name which is not a keyword.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	_, kw := luaKeywords[s]
	return !kw
}

// isReserved reports whether name carries the reserved marker.
func isReserved(name string) bool {
	return strings.HasPrefix(name, reservedMarker) || strings.HasSuffix(name, reservedMarker)
}

// validateBindingName checks a module name or import alias. These become
// Lua locals, so they must be identifiers, and they may not start with the
// reserved marker so that they never collide with generated identifiers.
func validateBindingName(kind, name string) error {
	if name == "" {
		return definitionErrorf("missing %s name", kind)
	}
	if !isIdentifier(name) {
		return definitionErrorf("%s name %q is not a valid Lua identifier", kind, name)
	}
	if strings.HasPrefix(name, reservedMarker) {
		return definitionErrorf("%s name %q uses the reserved prefix %q", kind, name, reservedMarker)
	}
	return nil
}

// validateFunctionName checks the name of a module function.
func validateFunctionName(name string) error {
	if !isIdentifier(name) {
		return definitionErrorf("function name %q is not a valid Lua identifier", name)
	}
	if isReserved(name) {
		return definitionErrorf("function name %q starts or ends with the reserved marker %q", name, reservedMarker)
	}
	return nil
}

// quote renders s as a Lua string literal.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\000`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
