// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// cjsonMaxDepth is the nesting limit of cjson.encode, the default of the
// cjson module bundled with Redis.
const cjsonMaxDepth = 1000

// cjson is the cjson library of the in-memory store. It follows the Redis
// cjson module: JSON null decodes to the cjson.null sentinel so that arrays
// keep their positions, empty tables encode as objects, and failures raise
// Lua errors.
type cjson struct {
	null *lua.LUserData
}

// newCJSON returns the cjson table of L.
func newCJSON(L *lua.LState) *lua.LTable {
	c := &cjson{null: L.NewUserData()}
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"encode": c.encode,
		"decode": c.decode,
	})
	mod.RawSetString("null", c.null)
	return mod
}

func (c *cjson) encode(L *lua.LState) int {
	v, err := c.toGo(L.CheckAny(1), 1)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		L.RaiseError("Cannot serialise: %s", err.Error())
		return 0
	}
	L.Push(lua.LString(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
	return 1
}

func (c *cjson) decode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(c.toLua(L, v))
	return 1
}

func (c *cjson) toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return c.null
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.CreateTable(len(x), 0)
		for i, elem := range x {
			t.RawSetInt(i+1, c.toLua(L, elem))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, elem := range x {
			t.RawSetString(k, c.toLua(L, elem))
		}
		return t
	default:
		return lua.LNil
	}
}

func (c *cjson) toGo(v lua.LValue, depth int) (any, error) {
	if depth > cjsonMaxDepth {
		return nil, fmt.Errorf("Cannot serialise, excessive nesting (%d)", depth)
	}
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LNumber:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("Cannot serialise number: must not be NaN or Inf")
		}
		return f, nil
	case lua.LString:
		return string(x), nil
	case *lua.LUserData:
		if x == c.null {
			return nil, nil
		}
	case *lua.LTable:
		return c.tableToGo(x, depth)
	}
	return nil, fmt.Errorf("Cannot serialise %s: type not supported", v.Type())
}

// tableToGo encodes tables whose keys are all positive integers as arrays,
// filling holes with null, and every other table as an object.
func (c *cjson) tableToGo(t *lua.LTable, depth int) (any, error) {
	items, maxIndex, isArray := 0, 0, true
	t.ForEach(func(k, _ lua.LValue) {
		items++
		if n, ok := k.(lua.LNumber); ok {
			f := float64(n)
			if f >= 1 && f == math.Floor(f) {
				maxIndex = max(maxIndex, int(f))
				return
			}
		}
		isArray = false
	})

	if items == 0 {
		return map[string]any{}, nil
	}

	if isArray {
		if maxIndex > items*2 && maxIndex > 10 {
			return nil, fmt.Errorf("Cannot serialise table: excessively sparse array")
		}
		arr := make([]any, maxIndex)
		for i := range arr {
			elem, err := c.toGo(t.RawGetInt(i+1), depth+1)
			if err != nil {
				return nil, err
			}
			arr[i] = elem
		}
		return arr, nil
	}

	var err error
	obj := make(map[string]any, items)
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'g', 14, 64)
		default:
			err = fmt.Errorf("Cannot serialise table: table key must be a number or string")
			return
		}
		obj[key], err = c.toGo(v, depth+1)
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
