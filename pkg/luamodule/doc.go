// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package luamodule links groups of Lua functions ("modules") into a single
// script that runs inside the Redis scripting engine, and dispatches calls of
// those functions as if they were remote procedures.
//
// A Module is a named table of functions plus a list of imports. Every
// module implicitly imports itself under its own name, and may import any
// other module of the same Registry, including itself, under an alias.
// Function bodies refer to imported modules by alias:
//
//	lib := reg.MustNewModule("Library", luamodule.Functions{
//		"foo": luamodule.MustParseFunction("", "return 456456"),
//	})
//	app := reg.MustNewModule("App", luamodule.Functions{
//		"foo": luamodule.MustParseFunction("", "return Library.foo() + 1"),
//	}, luamodule.WithImports(lib), luamodule.WithClient(conn))
//
//	v, err := app.Call(ctx, "foo") // 456457
//
// On the first call the import closure of the module is assembled into one
// script, registered with the store and cached on the module. Arguments and
// results cross the wire as JSON.
package luamodule
