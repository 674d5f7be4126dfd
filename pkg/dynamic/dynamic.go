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

// Package dynamic loads user-defined modules composed of a meta.yml
// (declared parameter set) and a main.yml (a task sequence). There is no
// plugin ABI here: a dynamic module is a directory of YAML, not a compiled
// artifact.
//
// The parsed meta is cached forever; main.yml is deliberately re-read on
// every invocation to support live edits during development.
package dynamic

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/display"
	"github.com/work-obs/rash-go/pkg/engine"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/task"
	"github.com/work-obs/rash-go/pkg/vars"
)

// ParamType is the closed set of declared parameter types a meta.yml may
// name.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeBoolean ParamType = "boolean"
)

func validParamType(t ParamType) bool {
	switch t {
	case TypeString, TypeNumber, TypeObject, TypeArray, TypeBoolean:
		return true
	default:
		return false
	}
}

// ParamDef is one declared parameter of a dynamic module's meta.yml.
type ParamDef struct {
	Type        ParamType   `yaml:"type"`
	Required    bool        `yaml:"required"`
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
}

// Meta is a dynamic module's parsed meta.yml.
type Meta struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Params      map[string]ParamDef `yaml:"params"`
}

type cacheEntry struct {
	meta     Meta
	mainPath string
}

// Loader discovers and invokes dynamic modules from a search path of
// directories, each named after the module it contains.
type Loader struct {
	fs         afero.Fs
	searchPath []string
	cache      map[string]*cacheEntry
	registry   *module.Registry
	disp       *display.Display
}

// NewLoader creates a Loader. reg is consulted to reject a dynamic module
// whose name shadows a built-in; disp receives trace-level notices for
// undeclared parameters.
func NewLoader(fs afero.Fs, searchPath []string, reg *module.Registry, disp *display.Display) *Loader {
	return &Loader{
		fs:         fs,
		searchPath: searchPath,
		cache:      make(map[string]*cacheEntry),
		registry:   reg,
		disp:       disp,
	}
}

// Resolve implements module.DynamicResolver: load (or fetch from cache) the
// module named name and return it wrapped to satisfy module.Module.
func (l *Loader) Resolve(name string) (module.Module, error) {
	entry, err := l.load(name)
	if err != nil {
		return nil, err
	}
	return &Module{name: name, loader: l, entry: entry}, nil
}

func (l *Loader) load(name string) (*cacheEntry, error) {
	if e, ok := l.cache[name]; ok {
		return e, nil
	}

	for _, root := range l.searchPath {
		dir := filepath.Join(root, name)
		metaPath := filepath.Join(dir, "meta.yml")
		mainPath := filepath.Join(dir, "main.yml")

		metaExists, _ := afero.Exists(l.fs, metaPath)
		mainExists, _ := afero.Exists(l.fs, mainPath)
		if !metaExists || !mainExists {
			continue
		}

		data, err := afero.ReadFile(l.fs, metaPath)
		if err != nil {
			return nil, rerr.Wrapf(rerr.IOError, err, "reading %s", metaPath)
		}
		var meta Meta
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, rerr.Wrapf(rerr.InvalidData, err, "parsing %s", metaPath)
		}
		if meta.Name == "" {
			meta.Name = name
		}
		for pname, pd := range meta.Params {
			if !validParamType(pd.Type) {
				return nil, rerr.Newf(rerr.InvalidData, "dynamic module %s: param %q has invalid type %q", name, pname, pd.Type)
			}
		}
		if l.registry.IsStatic(name) {
			return nil, rerr.Newf(rerr.InvalidData, "dynamic module %q shadows a built-in module", name)
		}

		entry := &cacheEntry{meta: meta, mainPath: mainPath}
		l.cache[name] = entry
		return entry, nil
	}

	return nil, rerr.Newf(rerr.NotFound, "no dynamic module named %q on search path", name)
}

func (l *Loader) readMain(path string) ([]byte, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, rerr.Wrapf(rerr.IOError, err, "reading %s", path)
	}
	return data, nil
}

// Module adapts one loaded dynamic module to module.Module and
// module.ChainAware.
type Module struct {
	name   string
	loader *Loader
	entry  *cacheEntry
}

func (m *Module) Name() string             { return m.name }
func (m *Module) ForceStringOnParams() bool { return false }

// Exec satisfies module.Module directly, for a top-level invocation with no
// active cycle-detection chain yet.
func (m *Module) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	return m.ExecChain(global, rawParams, v, checkMode, nil)
}

// ExecChain validates params, builds the child `module.*` context, parses
// main.yml fresh, and re-enters pkg/engine.Run. chain is extended with this
// module's own name before the nested Run call; a name already present in
// chain is a cycle, rejected before any task in it runs.
func (m *Module) ExecChain(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool, chain []string) (module.Result, map[string]interface{}, error) {
	for _, n := range chain {
		if n == m.name {
			return module.Result{}, nil, rerr.Newf(rerr.InvalidData,
				"dynamic module cycle detected: %s -> %s", strings.Join(chain, " -> "), m.name)
		}
	}

	params, err := validateParams(m.name, m.entry.meta, rawParams, m.loader.disp)
	if err != nil {
		return module.Result{}, nil, err
	}

	body, err := m.loader.readMain(m.entry.mainPath)
	if err != nil {
		return module.Result{}, nil, err
	}
	tasks, err := task.Parse(body)
	if err != nil {
		return module.Result{}, nil, err
	}

	childVars := v.Overlay(map[string]interface{}{
		"module": map[string]interface{}{
			"name":       m.name,
			"params":     params,
			"check_mode": checkMode,
		},
	})

	newChain := make([]string, 0, len(chain)+1)
	newChain = append(newChain, chain...)
	newChain = append(newChain, m.name)

	resultVars, _, err := engine.Run(tasks, childVars, global, m.loader.registry, m.loader.disp, newChain)
	if err != nil {
		return module.Result{}, nil, err
	}

	return sinksToResult(resultVars), nil, nil
}

// sinksToResult reads the three conventional sink names off the context a
// dynamic module's body left behind.
func sinksToResult(v *vars.Context) module.Result {
	var result module.Result
	if changed, ok := v.Lookup("__module_changed"); ok {
		if b, ok := changed.(bool); ok {
			result.Changed = b
		}
	}
	if output, ok := v.Lookup("__module_output"); ok {
		if s, ok := output.(string); ok {
			result.Output = s
		}
	}
	if extra, ok := v.Lookup("__module_extra"); ok {
		result.Extra = extra
	}
	return result
}

// validateParams applies the per-parameter rule: missing+required fails,
// missing+default injects the default, present passes through
// un-type-checked beyond what the caller already coerced. Undeclared keys
// are dropped with a trace-level notice rather than rejected.
func validateParams(name string, meta Meta, rawParams interface{}, disp *display.Display) (map[string]interface{}, error) {
	args, _ := rawParams.(map[string]interface{})

	out := make(map[string]interface{}, len(meta.Params))
	for pname, pd := range meta.Params {
		val, present := args[pname]
		if !present {
			if pd.Required {
				return nil, rerr.Newf(rerr.InvalidData, "dynamic module %s: missing required param %q", name, pname)
			}
			if pd.Default != nil {
				out[pname] = pd.Default
			}
			continue
		}
		out[pname] = val
	}

	for k := range args {
		if _, declared := meta.Params[k]; !declared {
			disp.Tracef("dynamic module %s: undeclared param %q ignored", name, k)
		}
	}

	return out, nil
}
