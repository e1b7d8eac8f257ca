// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

const consumerScript = `local _LuaModule0__Consumer = {}
local _LuaModule1__Library = {}
local _NOW_ = tonumber(ARGV[3])
do
	local Consumer, Library, L
	Consumer = _LuaModule0__Consumer
	Library = _LuaModule1__Library
	L = _LuaModule1__Library
	_LuaModule0__Consumer["bar"] = function(a, ...)
		local arg = {...}
return L.foo() + a
	end
end
do
	local Library
	Library = _LuaModule1__Library
	_LuaModule1__Library["foo"] = function()
return 1 -- trailing comment
	end
end
do
	local name = ARGV[1]
	local argv = cjson.decode(ARGV[2])
	local fn = _LuaModule0__Consumer[name]
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

func TestSourceLayout(t *testing.T) {
	reg := newTestRegistry(t)
	lib := reg.MustNewModule("Library", Functions{
		"foo": MustParseFunction("", "return 1 -- trailing comment"),
	})
	m := reg.MustNewModule("Consumer", Functions{
		"bar": MustParseFunction("a, ...", "return L.foo() + a\n"),
	}, WithImports(lib, As(lib, "L")), WithTimestamp())

	if diff := cmp.Diff(consumerScript, m.Source()); diff != "" {
		t.Errorf("unexpected script (-want +got):\n%s", diff)
	}
	require.NoError(t, Check(m.Source()))
}

func TestSourceLibraryOnly(t *testing.T) {
	reg := newTestRegistry(t)
	lib := reg.MustNewModule("Library", constant("return 1"))
	reg.MustNewModule("Consumer", nil, WithImports(lib), WithTimestamp())

	assembled := metrics.GetHistogramSampleCount(metrics.ScriptClosureSize)
	src := lib.Source()
	require.Equal(t, assembled+1, metrics.GetHistogramSampleCount(metrics.ScriptClosureSize))
	require.Contains(t, src, "local _LuaModule0__Library = {}\n")
	require.NotContains(t, src, "Consumer", "importers are not part of the closure")
	require.NotContains(t, src, TimestampName, "timestamp is only exposed by modules asking for it")
}

func TestIdentifierPerModuleInstance(t *testing.T) {
	reg := newTestRegistry(t)
	first := reg.MustNewModule("Twin", constant("return 1"))
	second := reg.MustNewModule("Twin", constant("return 2"))
	m := reg.MustNewModule("M", nil, WithImports(As(first, "First"), As(second, "Second")))

	src := m.Source()
	require.Contains(t, src, "local _LuaModule1__Twin = {}\n")
	require.Contains(t, src, "local _LuaModule2__Twin = {}\n")
	require.Contains(t, src, "First = _LuaModule1__Twin\n")
	require.Contains(t, src, "Second = _LuaModule2__Twin\n")
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"plain"`, quote("plain"))
	require.Equal(t, `"a\"b\\c\nd\re\0001"`, quote("a\"b\\c\nd\re\x001"))
}

func TestCheck(t *testing.T) {
	reg := newTestRegistry(t)
	good := reg.MustNewModule("Good", Functions{
		"f": MustParseFunction("a, b=nil, ...", "if b == nil then return #arg end\nreturn a"),
	})
	require.NoError(t, good.Check())

	bad := reg.MustNewModule("Bad", Functions{
		"f": MustParseFunction("", "return ("),
	})
	err := bad.Check()
	require.ErrorContains(t, err, "module Bad")

	require.Error(t, Check("local x = "))
}
