// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/leifkb/redis-luamodules/pkg/lock"
	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

// DefaultScriptCacheSize is the default number of compiled scripts kept by
// the in-memory store.
const DefaultScriptCacheSize = 128

// NewInMemoryClient returns a store which evaluates scripts in-process with
// an embedded Lua 5.1 interpreter. Scripts see ARGV, an empty KEYS table,
// cjson and the Lua standard library, but no keyspace: there is no redis
// global. Evaluations are serialized like in the Redis scripting engine.
func NewInMemoryClient(logger *slog.Logger, cacheSize int) (Client, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultScriptCacheSize
	}
	protos, err := lru.New[string, *lua.FunctionProto](cacheSize)
	if err != nil {
		return nil, err
	}
	return &inMemoryClient{
		scripts: make(map[string]string),
		protos:  protos,
		logger:  logger.With(logfields.Backend, MemoryBackendName),
	}, nil
}

type inMemoryClient struct {
	mu      lock.Mutex
	scripts map[string]string

	// protos caches compiled scripts by digest.
	protos *lru.Cache[string, *lua.FunctionProto]
	logger *slog.Logger
}

var _ Client = &inMemoryClient{}

func (c *inMemoryClient) Name() string { return MemoryBackendName }

// Close implements Client.
func (c *inMemoryClient) Close() error { return nil }

// RegisterScript implements luamodule.Client.
func (c *inMemoryClient) RegisterScript(ctx context.Context, source string) (luamodule.Handle, error) {
	h := luamodule.NewHandle(source)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[h.SHA] = source
	return h, nil
}

// EvalScript implements luamodule.Conn.
func (c *inMemoryClient) EvalScript(ctx context.Context, h luamodule.Handle, args ...string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evalLocked(ctx, h, args)
}

// Pipeline implements Client.
func (c *inMemoryClient) Pipeline() luamodule.Batch {
	return &inMemoryBatch{
		c:     c,
		hooks: make(map[int]luamodule.PostProcessFunc),
	}
}

// Scripts returns the digests of all scripts known to the store.
func (c *inMemoryClient) Scripts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	shas := make([]string, 0, len(c.scripts))
	for sha := range c.scripts {
		shas = append(shas, sha)
	}
	return shas
}

// Flush forgets all scripts, like SCRIPT FLUSH.
func (c *inMemoryClient) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.scripts)
	c.protos.Purge()
}

func (c *inMemoryClient) evalLocked(ctx context.Context, h luamodule.Handle, args []string) (any, error) {
	source, ok := c.scripts[h.SHA]
	if !ok {
		if h.Source == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoScript, h.SHA)
		}
		metrics.NoScriptFallbacks.WithLabelValues(MemoryBackendName).Inc()
		c.logger.Warn("Script unknown to the store, evaluating source", logfields.ScriptSHA, h.SHA)
		source = h.Source
		c.scripts[h.SHA] = source
	}

	proto, err := c.compileLocked(h.SHA, source)
	if err != nil {
		return nil, err
	}

	L, err := newScriptState(args)
	if err != nil {
		return nil, err
	}
	defer L.Close()
	if ctx != nil {
		L.SetContext(ctx)
	}

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("ERR error running script %s: %w", h.SHA, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret)
}

func (c *inMemoryClient) compileLocked(sha, source string) (*lua.FunctionProto, error) {
	if proto, ok := c.protos.Get(sha); ok {
		return proto, nil
	}
	chunk, err := parse.Parse(strings.NewReader(source), "user_script")
	if err != nil {
		return nil, fmt.Errorf("ERR error compiling script %s: %w", sha, err)
	}
	proto, err := lua.Compile(chunk, "user_script")
	if err != nil {
		return nil, fmt.Errorf("ERR error compiling script %s: %w", sha, err)
	}
	c.protos.Add(sha, proto)
	return proto, nil
}

// newScriptState returns an interpreter with the globals a Redis script
// can rely on.
func newScriptState(args []string) (*lua.LState, error) {
	L := lua.NewState()
	L.SetGlobal("cjson", newCJSON(L))

	argv := L.NewTable()
	for _, a := range args {
		argv.Append(lua.LString(a))
	}
	L.SetGlobal("ARGV", argv)
	L.SetGlobal("KEYS", L.NewTable())
	return L, nil
}

// fromLua converts a script result the way Redis converts Lua values into
// replies: numbers are truncated to integers, true becomes 1, false and nil
// become nil, tables become arrays up to the first nil. Tables with an err
// field are errors, tables with an ok field are status replies.
func fromLua(v lua.LValue) (any, error) {
	switch lv := v.(type) {
	case lua.LString:
		return string(lv), nil
	case lua.LNumber:
		return int64(lv), nil
	case lua.LBool:
		if lv {
			return int64(1), nil
		}
		return nil, nil
	case *lua.LTable:
		if e, ok := lv.RawGetString("err").(lua.LString); ok {
			return nil, errors.New(string(e))
		}
		if s, ok := lv.RawGetString("ok").(lua.LString); ok {
			return string(s), nil
		}
		var out []any
		for i := 1; ; i++ {
			elem := lv.RawGetInt(i)
			if elem == lua.LNil {
				break
			}
			conv, err := fromLua(elem)
			if err != nil {
				conv = err
			}
			out = append(out, conv)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	default:
		return nil, nil
	}
}

type queuedEval struct {
	h    luamodule.Handle
	args []string
}

type inMemoryBatch struct {
	c     *inMemoryClient
	queue []queuedEval
	hooks map[int]luamodule.PostProcessFunc
}

var _ luamodule.Batch = &inMemoryBatch{}

// RegisterScript implements luamodule.Client.
func (b *inMemoryBatch) RegisterScript(ctx context.Context, source string) (luamodule.Handle, error) {
	return b.c.RegisterScript(ctx, source)
}

// QueueScript implements luamodule.Batch.
func (b *inMemoryBatch) QueueScript(ctx context.Context, h luamodule.Handle, args ...string) int {
	b.queue = append(b.queue, queuedEval{h: h, args: args})
	return len(b.queue) - 1
}

// SetPostProcess implements luamodule.Batch.
func (b *inMemoryBatch) SetPostProcess(slot int, fn luamodule.PostProcessFunc) {
	b.hooks[slot] = fn
}

// Exec implements luamodule.Batch.
func (b *inMemoryBatch) Exec(ctx context.Context) ([]any, error) {
	queue, hooks := b.queue, b.hooks
	b.queue, b.hooks = nil, make(map[int]luamodule.PostProcessFunc)

	b.c.mu.Lock()
	raw := make([]any, len(queue))
	errs := make([]error, len(queue))
	for i, q := range queue {
		raw[i], errs[i] = b.c.evalLocked(ctx, q.h, q.args)
	}
	b.c.mu.Unlock()

	return finishBatch(raw, errs, hooks)
}
