// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/luamodule"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

// minRequiredVersion is the first Redis release with Lua scripting.
var minRequiredVersion, _ = version.NewConstraint(">= 2.6.0")

// NewRedisClient returns a store client evaluating scripts on rdb. A qps
// greater than zero rate limits store operations.
func NewRedisClient(rdb redis.UniversalClient, logger *slog.Logger, qps int) Client {
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	return &redisClient{
		rdb:     rdb,
		limiter: rate.NewLimiter(limit, max(qps, 1)),
		logger:  logger.With(logfields.Backend, RedisBackendName),
	}
}

type redisClient struct {
	rdb     redis.UniversalClient
	limiter *rate.Limiter

	// loads collapses concurrent SCRIPT LOADs of the same script.
	loads  singleflight.Group
	logger *slog.Logger
}

var _ Client = &redisClient{}

func (c *redisClient) Name() string { return RedisBackendName }

// Close implements Client.
func (c *redisClient) Close() error {
	return c.rdb.Close()
}

// RegisterScript implements luamodule.Client by loading source into the
// server's script cache.
func (c *redisClient) RegisterScript(ctx context.Context, source string) (luamodule.Handle, error) {
	h := luamodule.NewHandle(source)
	_, err, _ := c.loads.Do(h.SHA, func() (any, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		sha, err := c.rdb.ScriptLoad(ctx, source).Result()
		if err != nil {
			return nil, err
		}
		if sha != h.SHA {
			return nil, fmt.Errorf("server returned digest %s for script %s", sha, h.SHA)
		}
		return sha, nil
	})
	if err != nil {
		return luamodule.Handle{}, err
	}
	return h, nil
}

// EvalScript implements luamodule.Conn. Scripts the server lost, after a
// restart or SCRIPT FLUSH, are evaluated from source which reloads them.
func (c *redisClient) EvalScript(ctx context.Context, h luamodule.Handle, args ...string) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	argv := toInterfaces(args)
	v, err := c.rdb.EvalSha(ctx, h.SHA, nil, argv...).Result()
	if err != nil && isNoScript(err) && h.Source != "" {
		metrics.NoScriptFallbacks.WithLabelValues(RedisBackendName).Inc()
		c.logger.Warn("Script unknown to the store, evaluating source", logfields.ScriptSHA, h.SHA)
		v, err = c.rdb.Eval(ctx, h.Source, nil, argv...).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

// Pipeline implements Client.
func (c *redisClient) Pipeline() luamodule.Batch {
	return &redisBatch{
		c:       c,
		pipe:    c.rdb.Pipeline(),
		scripts: make(map[string]string),
		hooks:   make(map[int]luamodule.PostProcessFunc),
	}
}

// checkServer verifies that the server is reachable and supports scripting.
func (c *redisClient) checkServer(ctx context.Context) error {
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return fmt.Errorf("unable to query redis server: %w", err)
	}
	v, err := parseServerVersion(info)
	if err != nil {
		return err
	}
	if !minRequiredVersion.Check(v) {
		return fmt.Errorf("redis server version %s does not satisfy %s", v, minRequiredVersion)
	}
	c.logger.Info("Connected to redis", logfields.Version, v.String())
	return nil
}

// parseServerVersion extracts redis_version from the output of INFO server.
func parseServerVersion(info string) (*version.Version, error) {
	s := bufio.NewScanner(strings.NewReader(info))
	for s.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(s.Text()), "redis_version:"); ok {
			return version.NewVersion(v)
		}
	}
	return nil, errors.New("redis_version missing from server info")
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// redisBatch queues evaluations on a go-redis pipeline. Scripts are loaded
// into the server right before the pipeline executes.
type redisBatch struct {
	c       *redisClient
	pipe    redis.Pipeliner
	scripts map[string]string
	cmds    []*redis.Cmd
	hooks   map[int]luamodule.PostProcessFunc
}

var _ luamodule.Batch = &redisBatch{}

// RegisterScript implements luamodule.Client. The script is only loaded by
// Exec.
func (b *redisBatch) RegisterScript(ctx context.Context, source string) (luamodule.Handle, error) {
	h := luamodule.NewHandle(source)
	b.scripts[h.SHA] = source
	return h, nil
}

// QueueScript implements luamodule.Batch.
func (b *redisBatch) QueueScript(ctx context.Context, h luamodule.Handle, args ...string) int {
	if h.Source != "" {
		b.scripts[h.SHA] = h.Source
	}
	b.cmds = append(b.cmds, b.pipe.EvalSha(ctx, h.SHA, nil, toInterfaces(args)...))
	return len(b.cmds) - 1
}

// SetPostProcess implements luamodule.Batch.
func (b *redisBatch) SetPostProcess(slot int, fn luamodule.PostProcessFunc) {
	b.hooks[slot] = fn
}

// Exec implements luamodule.Batch.
func (b *redisBatch) Exec(ctx context.Context) ([]any, error) {
	cmds, hooks, scripts := b.cmds, b.hooks, b.scripts
	b.cmds = nil
	b.hooks = make(map[int]luamodule.PostProcessFunc)
	b.scripts = make(map[string]string)

	if len(cmds) == 0 {
		return nil, nil
	}
	if err := b.loadScripts(ctx, scripts); err != nil {
		b.pipe.Discard()
		return nil, err
	}
	if err := b.c.limiter.Wait(ctx); err != nil {
		b.pipe.Discard()
		return nil, err
	}

	// Per command errors are collected below, Exec only reports the first.
	if _, err := b.pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		b.c.logger.Debug("Pipeline reported an error", logfields.Error, err)
	}

	raw := make([]any, len(cmds))
	errs := make([]error, len(cmds))
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			v, err = nil, nil
		}
		raw[i], errs[i] = v, err
	}
	return finishBatch(raw, errs, hooks)
}

// loadScripts loads every script the server does not know yet.
func (b *redisBatch) loadScripts(ctx context.Context, scripts map[string]string) error {
	if len(scripts) == 0 {
		return nil
	}
	shas := make([]string, 0, len(scripts))
	for sha := range scripts {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	exists, err := b.c.rdb.ScriptExists(ctx, shas...).Result()
	if err != nil {
		return err
	}
	for i, ok := range exists {
		if ok {
			continue
		}
		if _, err := b.c.RegisterScript(ctx, scripts[shas[i]]); err != nil {
			return err
		}
	}
	return nil
}
