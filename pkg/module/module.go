/*
Copyright (c) 2024 Ansible Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package module defines the task engine's module contract and the static
// registry modules dispatch through. A Task names exactly one Module
// (pkg/task); the engine (pkg/engine) renders the task's raw parameters and
// calls Exec against whatever Module the Registry resolves the name to,
// static or dynamic.
package module

import (
	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

// Result is the outcome of applying a module. Changed=false must mean the
// host's observable state is unchanged from before Exec ran, for any module
// that declares full check-mode support.
type Result struct {
	Changed bool
	Failed  bool
	Output  string
	Extra   interface{}
}

// Module is the dispatch contract every static and dynamic module
// implements.
type Module interface {
	// Name is the key this module is registered and invoked under.
	Name() string

	// Exec applies the module. rawParams is the task's already-rendered
	// parameter tree (rendering happened with ForceStringOnParams() as the
	// force_string flag). It returns the module's Result plus an optional
	// vars delta to merge into the context before the next task.
	Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (Result, map[string]interface{}, error)

	// ForceStringOnParams controls whether templated scalars inside this
	// module's params are coerced to strings rather than re-parsed as YAML.
	ForceStringOnParams() bool
}

// RawStringAccepter is implemented by modules whose shorthand (a bare
// string value under the module key, e.g. `command: "echo hi"`) is passed
// through as `_raw_params` rather than promoted to `{"_": value}`.
type RawStringAccepter interface {
	RawStringParam() bool
}

// ChainAware is implemented by the dynamic-module adapter (pkg/dynamic),
// whose Exec must re-enter pkg/engine.Run with an extended cycle-detection
// chain. A plain static Module has no chain to extend, so
// the dispatcher only type-asserts for this capability rather than widening
// the Module interface itself.
type ChainAware interface {
	ExecChain(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool, chain []string) (Result, map[string]interface{}, error)
}

// Registry resolves a module name to a Module, static names taking
// precedence over dynamic ones.
type Registry struct {
	static  map[string]Module
	dynamic DynamicResolver
}

// DynamicResolver is satisfied by *dynamic.Loader; kept as an interface
// here so pkg/module does not import pkg/dynamic (which itself depends on
// pkg/module.Module to adapt a loaded module into the registry).
type DynamicResolver interface {
	Resolve(name string) (Module, error)
}

// NewRegistry creates an empty registry. Builtins register themselves via
// Register, typically from an init() in pkg/module/builtin.
func NewRegistry() *Registry {
	return &Registry{static: make(map[string]Module)}
}

// Register adds a static module. Panics on duplicate registration: this
// only happens from package init(), a programming error, not a runtime
// condition.
func (r *Registry) Register(m Module) {
	name := m.Name()
	if _, exists := r.static[name]; exists {
		panic("module: duplicate static registration for " + name)
	}
	r.static[name] = m
}

// SetDynamicResolver wires the dynamic module loader in. Called once at
// startup after the loader has its search path configured.
func (r *Registry) SetDynamicResolver(d DynamicResolver) {
	r.dynamic = d
}

// IsStatic reports whether name is a built-in module, used by the dynamic
// loader to reject a user module whose name would shadow one.
func (r *Registry) IsStatic(name string) bool {
	_, ok := r.static[name]
	return ok
}

// Resolve looks up a module by name: static modules win outright; a miss
// falls through to the dynamic resolver if one is configured.
func (r *Registry) Resolve(name string) (Module, error) {
	if m, ok := r.static[name]; ok {
		return m, nil
	}
	if r.dynamic != nil {
		m, err := r.dynamic.Resolve(name)
		if err == nil {
			return m, nil
		}
		return nil, err
	}
	return nil, rerr.Newf(rerr.NotFound, "no such module: %s", name)
}
