// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

const (
	// identifierPrefix starts the generated names of module tables. Module
	// names and aliases may not start with the reserved marker, so these
	// never collide with user chosen names.
	identifierPrefix = "_LuaModule"

	// TimestampName is the local holding the invocation timestamp, in Unix
	// milliseconds, in scripts of modules created WithTimestamp.
	TimestampName = "_NOW_"
)

// Positions of the generic arguments passed to every module script.
const (
	argFunction = iota + 1
	argArguments
	argTimestamp
)

// epilogue decodes the call, invokes the function on the root module table
// and encodes its result. A function returning nothing yields JSON null.
const epilogue = `do
	local name = ARGV[%[2]d]
	local argv = cjson.decode(ARGV[%[3]d])
	local fn = %[1]s[name]
	if fn == nil then
		error("unknown function " .. tostring(name))
	end
	local result = fn(unpack(argv))
	if result == nil then
		return "null"
	end
	return cjson.encode(result)
end
`

func identifier(seq int, name string) string {
	return fmt.Sprintf("%s%d__%s", identifierPrefix, seq, name)
}

// Source returns the script linking the import closure of m. Assembling
// the script freezes the import lists of every module in the closure.
func (m *Module) Source() string {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.assembleLocked()
}

func (m *Module) assembleLocked() string {
	start := time.Now()
	closure := m.closureLocked()

	idents := make(map[ModuleID]string, len(closure))
	for seq, id := range closure {
		idents[id] = identifier(seq, m.reg.modules[id].name)
	}

	var b strings.Builder
	// Every table exists before any module block runs, so blocks can be
	// emitted in any order and cyclic imports resolve.
	for _, id := range closure {
		fmt.Fprintf(&b, "local %s = {}\n", idents[id])
	}
	if m.timestamp {
		fmt.Fprintf(&b, "local %s = tonumber(ARGV[%d])\n", TimestampName, argTimestamp)
	}
	for _, id := range closure {
		dep := m.reg.modules[id]
		dep.compiled = true
		emitModuleLocked(&b, dep, idents)
	}
	fmt.Fprintf(&b, epilogue, idents[m.id], argFunction, argArguments)

	metrics.ScriptAssemblyDuration.Observe(time.Since(start).Seconds())
	metrics.ScriptClosureSize.Observe(float64(len(closure)))
	m.reg.logger.Debug("Assembled module script",
		logfields.Module, m.name,
		logfields.ClosureSize, len(closure),
		logfields.ScriptSize, b.Len(),
	)
	return b.String()
}

// Check parses and compiles source with an embedded Lua 5.1 compiler. It
// catches syntax errors in function bodies before the store sees them.
func Check(source string) error {
	const chunkName = "luamodule"
	chunk, err := parse.Parse(strings.NewReader(source), chunkName)
	if err != nil {
		return fmt.Errorf("parsing script: %w", err)
	}
	if _, err := lua.Compile(chunk, chunkName); err != nil {
		return fmt.Errorf("compiling script: %w", err)
	}
	return nil
}

// Check assembles the script of m and checks it with the package level
// Check.
func (m *Module) Check() error {
	if err := Check(m.Source()); err != nil {
		return fmt.Errorf("module %s: %w", m.name, err)
	}
	return nil
}
