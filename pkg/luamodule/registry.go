// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/leifkb/redis-luamodules/pkg/lock"
	"github.com/leifkb/redis-luamodules/pkg/logging"
	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
)

// Registry owns a set of modules which may import each other. Modules are
// identified by their position in the registry, never by name, so two
// modules may share a name and import cycles are plain graph edges.
type Registry struct {
	// mu protects the import lists and compiled flags of all modules, and
	// the modules slice itself.
	mu      lock.RWMutex
	modules []*Module

	logger *slog.Logger
	clock  func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used by the registry and its modules.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock sets the clock read for the invocation timestamp of modules
// created WithTimestamp.
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: logging.DefaultSlogLogger.With(logfields.LogSubsys, "luamodule"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewModule defines a module called name with the given functions. The
// module implicitly imports itself under name.
func (r *Registry) NewModule(name string, functions Functions, opts ...ModuleOption) (*Module, error) {
	if err := validateBindingName("module", name); err != nil {
		return nil, err
	}

	m := &Module{
		reg:       r,
		name:      name,
		functions: make(Functions, len(functions)),
	}
	for _, fname := range slices.Sorted(maps.Keys(functions)) {
		spec := functions[fname]
		if err := validateFunctionName(fname); err != nil {
			return nil, withModule(err, name)
		}
		if err := spec.validate(); err != nil {
			return nil, withModule(withFunction(err, fname), name)
		}
		m.functions[fname] = spec
	}

	var cfg moduleConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	m.client = cfg.client
	m.timestamp = cfg.timestamp

	r.mu.Lock()
	defer r.mu.Unlock()

	m.id = ModuleID(len(r.modules))
	m.imports = []importEdge{{target: m.id, alias: name}}
	// The module is not part of the registry yet, so a failed import leaves
	// no trace.
	if err := m.addImportsLocked(cfg.imports); err != nil {
		return nil, err
	}
	r.modules = append(r.modules, m)

	r.logger.Debug("Defined module",
		logfields.Module, name,
		logfields.ModuleID, m.id,
	)
	return m, nil
}

// MustNewModule is like NewModule but panics on error.
func (r *Registry) MustNewModule(name string, functions Functions, opts ...ModuleOption) *Module {
	m, err := r.NewModule(name, functions, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Modules returns all modules in the order they were defined.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}
