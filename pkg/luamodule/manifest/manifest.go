// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package manifest declares luamodule modules in YAML files.
//
//	modules:
//	- name: Library
//	  functions:
//	    foo:
//	      body: return 456456
//	- name: LibraryConsumer
//	  imports:
//	  - Library
//	  - module: Library
//	    as: AliasOfLibrary
//	  functions:
//	    foo:
//	      params: a, b=nil
//	      body: return Library.foo() + AliasOfLibrary.foo()
//
// Imports refer to modules of the same manifest by name and may form
// cycles. Params is either a parameter list or a YAML list of parameters.
//
// Manifests are YAML 1.1: a bare y, n, yes, no, on or off decodes as a
// boolean, so such a parameter or import name must be quoted.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"github.com/leifkb/redis-luamodules/pkg/luamodule"
)

// Manifest is a set of module declarations.
type Manifest struct {
	Modules []Module `json:"modules"`
}

// Module declares one module.
type Module struct {
	Name      string              `json:"name"`
	Timestamp bool                `json:"timestamp,omitempty"`
	Imports   []Import            `json:"imports,omitempty"`
	Functions map[string]Function `json:"functions,omitempty"`
}

// Import refers to another module of the manifest. In YAML it is either the
// module name or an object with module and as keys.
type Import struct {
	Module string `json:"module"`
	As     string `json:"as,omitempty"`
}

func (i *Import) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*i = Import{Module: name}
		return nil
	}

	type plain Import
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("import must be a module name or {module, as}: %w", err)
	}
	*i = Import(p)
	return nil
}

// Function declares one function by its parameter list, in the notation
// accepted by luamodule.ParseFunction, and its body.
type Function struct {
	Params Params `json:"params,omitempty"`
	Body   string `json:"body"`
}

// Params is a parameter list. In YAML it is either the list as written in
// Lua, "a, b=nil, ...rest", or a sequence of its entries.
type Params string

func (p *Params) UnmarshalJSON(data []byte) error {
	var list string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = Params(list)
		return nil
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("params must be a string or a list of strings, got %s (quote y, n, yes, no, on and off)", data)
	}
	*p = Params(strings.Join(entries, ", "))
	return nil
}

// Parse decodes a YAML manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Set is the result of building a manifest: its modules, by name.
type Set struct {
	registry *luamodule.Registry
	modules  map[string]*luamodule.Module
	order    []string
}

// Registry returns the registry holding the modules of the set.
func (s *Set) Registry() *luamodule.Registry {
	return s.registry
}

// Module returns the module declared under name.
func (s *Set) Module(name string) (*luamodule.Module, bool) {
	m, ok := s.modules[name]
	return m, ok
}

// Names returns the module names in declaration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Modules returns the modules in declaration order.
func (s *Set) Modules() []*luamodule.Module {
	out := make([]*luamodule.Module, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.modules[name])
	}
	return out
}

// Build defines the manifest's modules in reg. Modules are defined first and
// linked afterwards, so imports may refer to modules declared later and may
// form cycles. opts apply to every module. All definition errors are
// reported together.
func (m *Manifest) Build(reg *luamodule.Registry, opts ...luamodule.ModuleOption) (*Set, error) {
	s := &Set{
		registry: reg,
		modules:  make(map[string]*luamodule.Module, len(m.Modules)),
	}

	var errs error
	for _, decl := range m.Modules {
		if _, dup := s.modules[decl.Name]; dup {
			errs = multierr.Append(errs, &luamodule.DefinitionError{
				Module: decl.Name,
				Reason: "declared more than once",
			})
			continue
		}

		functions, err := decl.functions()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		modOpts := opts
		if decl.Timestamp {
			modOpts = append(modOpts[:len(modOpts):len(modOpts)], luamodule.WithTimestamp())
		}
		mod, err := reg.NewModule(decl.Name, functions, modOpts...)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.modules[decl.Name] = mod
		s.order = append(s.order, decl.Name)
	}

	for _, decl := range m.Modules {
		mod, ok := s.modules[decl.Name]
		if !ok || len(decl.Imports) == 0 {
			continue
		}
		imports := make([]luamodule.Importable, 0, len(decl.Imports))
		for _, imp := range decl.Imports {
			target, ok := s.modules[imp.Module]
			if !ok {
				errs = multierr.Append(errs, &luamodule.DefinitionError{
					Module: decl.Name,
					Reason: fmt.Sprintf("import of unknown module %q", imp.Module),
				})
				continue
			}
			imports = append(imports, luamodule.As(target, imp.As))
		}
		if err := mod.AddImports(imports...); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return nil, errs
	}
	return s, nil
}

func (decl Module) functions() (luamodule.Functions, error) {
	names := make([]string, 0, len(decl.Functions))
	for name := range decl.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	functions := make(luamodule.Functions, len(decl.Functions))
	for _, name := range names {
		fn := decl.Functions[name]
		spec, err := luamodule.ParseFunction(string(fn.Params), fn.Body)
		if err != nil {
			errs = multierr.Append(errs, annotate(err, decl.Name, name))
			continue
		}
		functions[name] = spec
	}
	return functions, errs
}

// annotate names the module and function a definition error occurred in.
func annotate(err error, module, function string) error {
	var de *luamodule.DefinitionError
	if errors.As(err, &de) {
		annotated := *de
		annotated.Module, annotated.Function = module, function
		return &annotated
	}
	return fmt.Errorf("%s.%s: %w", module, function, err)
}
