// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"fmt"
	"sort"

	"github.com/leifkb/redis-luamodules/pkg/lock"
)

// ModuleID is the position of a module within its Registry.
type ModuleID int

// Module is a named table of scripted functions together with the modules
// it imports. Functions are fixed at definition, imports may be added until
// the module script is first assembled.
type Module struct {
	reg       *Registry
	id        ModuleID
	name      string
	functions Functions
	client    Client
	timestamp bool

	// imports and compiled are protected by reg.mu. The first import is
	// always the module itself under its own name.
	imports  []importEdge
	compiled bool

	// regMu serializes registration so that the script is registered at
	// most once.
	regMu  lock.Mutex
	handle *Handle
}

type importEdge struct {
	target ModuleID
	alias  string
}

// Import is an import of Module under the alias As. An empty alias selects
// the module's own name.
type Import struct {
	Module *Module
	As     string
}

// As returns an import of m under alias.
func As(m *Module, alias string) Import {
	return Import{Module: m, As: alias}
}

// Importable is implemented by *Module, importing the module under its own
// name, and by Import.
type Importable interface {
	asImport() Import
}

func (m *Module) asImport() Import {
	return Import{Module: m, As: m.name}
}

func (i Import) asImport() Import {
	if i.As == "" && i.Module != nil {
		i.As = i.Module.name
	}
	return i
}

type moduleConfig struct {
	imports   []Importable
	client    Client
	timestamp bool
}

// ModuleOption configures a Module at definition.
type ModuleOption func(*moduleConfig)

// WithImports adds imports to the module being defined.
func WithImports(imports ...Importable) ModuleOption {
	return func(c *moduleConfig) {
		c.imports = append(c.imports, imports...)
	}
}

// WithClient sets the client used by calls which do not pass one.
func WithClient(client Client) ModuleOption {
	return func(c *moduleConfig) {
		c.client = client
	}
}

// WithTimestamp exposes a per-call timestamp to the functions linked into
// this module's script under the name TimestampName.
func WithTimestamp() ModuleOption {
	return func(c *moduleConfig) {
		c.timestamp = true
	}
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return m.name
}

// ID returns the identity of the module within its registry.
func (m *Module) ID() ModuleID {
	return m.id
}

// Registry returns the registry the module belongs to.
func (m *Module) Registry() *Registry {
	return m.reg
}

// Functions returns the names of the module's functions, sorted.
func (m *Module) Functions() []string {
	names := make([]string, 0, len(m.functions))
	for name := range m.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Function returns the spec of the named function.
func (m *Module) Function(name string) (FunctionSpec, bool) {
	f, ok := m.functions[name]
	return f, ok
}

// Imports returns the import list of the module, starting with the implicit
// self import.
func (m *Module) Imports() []Import {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()

	imports := make([]Import, 0, len(m.imports))
	for _, e := range m.imports {
		imports = append(imports, Import{Module: m.reg.modules[e.target], As: e.alias})
	}
	return imports
}

// AddImports adds imports to the module. It fails with
// ErrMutationAfterCompile once the module script has been assembled, either
// for this module or for a module importing it. No import is added if any
// of them is invalid.
func (m *Module) AddImports(imports ...Importable) error {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.addImportsLocked(imports)
}

func (m *Module) addImportsLocked(imports []Importable) error {
	if m.compiled {
		return fmt.Errorf("module %s: %w", m.name, ErrMutationAfterCompile)
	}

	used := make(map[string]struct{}, len(m.imports)+len(imports))
	for _, e := range m.imports {
		used[e.alias] = struct{}{}
	}

	edges := make([]importEdge, 0, len(imports))
	for _, imp := range imports {
		if imp == nil {
			return withModule(definitionErrorf("nil import"), m.name)
		}
		i := imp.asImport()
		if i.Module == nil {
			return withModule(definitionErrorf("import %q has no module", i.As), m.name)
		}
		if i.Module.reg != m.reg {
			return withModule(definitionErrorf("import %q refers to a module of another registry", i.As), m.name)
		}
		if err := validateBindingName("alias", i.As); err != nil {
			return withModule(err, m.name)
		}
		if _, dup := used[i.As]; dup {
			return withModule(definitionErrorf("import name %q is already in use", i.As), m.name)
		}
		used[i.As] = struct{}{}
		edges = append(edges, importEdge{target: i.Module.id, alias: i.As})
	}

	m.imports = append(m.imports, edges...)
	return nil
}

// Closure returns the modules transitively imported by m, m first, in
// depth-first order.
func (m *Module) Closure() []*Module {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()

	ids := m.closureLocked()
	modules := make([]*Module, 0, len(ids))
	for _, id := range ids {
		modules = append(modules, m.reg.modules[id])
	}
	return modules
}

func (m *Module) closureLocked() []ModuleID {
	visited := make([]bool, len(m.reg.modules))
	var order []ModuleID

	var visit func(id ModuleID)
	visit = func(id ModuleID) {
		if visited[id] {
			return
		}
		// Mark before descending so that cycles terminate.
		visited[id] = true
		order = append(order, id)
		for _, e := range m.reg.modules[id].imports {
			visit(e.target)
		}
	}
	visit(m.id)

	return order
}

// Compiled reports whether the module script, or the script of a module
// importing it, has been assembled.
func (m *Module) Compiled() bool {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return m.compiled
}

// Handle returns the handle of the registered module script, if any.
func (m *Module) Handle() (Handle, bool) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	if m.handle == nil {
		return Handle{}, false
	}
	return *m.handle, true
}

func (m *Module) String() string {
	return fmt.Sprintf("%s#%d", m.name, m.id)
}

// importAliasesLocked returns the aliases of the module's imports, self
// first.
func (m *Module) importAliasesLocked() []string {
	aliases := make([]string, 0, len(m.imports))
	for _, e := range m.imports {
		aliases = append(aliases, e.alias)
	}
	return aliases
}
