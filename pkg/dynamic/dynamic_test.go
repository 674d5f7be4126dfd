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

package dynamic

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/display"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/vars"
)

// setVarsModule is the minimal set_vars stand-in a dynamic module's main.yml
// needs to populate its own __module_* sink names.
type setVarsModule struct{}

func (m *setVarsModule) Name() string             { return "set_vars" }
func (m *setVarsModule) ForceStringOnParams() bool { return false }
func (m *setVarsModule) Exec(_ config.GlobalParams, rawParams interface{}, _ *vars.Context, _ bool) (module.Result, map[string]interface{}, error) {
	args, _ := rawParams.(map[string]interface{})
	return module.Result{}, args, nil
}

func writeModule(t *testing.T, fs afero.Fs, root, name, meta, main string) {
	t.Helper()
	dir := root + "/" + name
	if err := fs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, dir+"/meta.yml", []byte(meta), 0644); err != nil {
		t.Fatalf("write meta.yml: %v", err)
	}
	if err := afero.WriteFile(fs, dir+"/main.yml", []byte(main), 0644); err != nil {
		t.Fatalf("write main.yml: %v", err)
	}
}

func TestDynamicModuleGreetScenario(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModule(t, fs, "/modules", "greet",
		`
name: greet
params:
  name:
    type: string
    required: true
`,
		`
- set_vars:
    __module_output: "hi {{ module.params.name }}"
- set_vars:
    __module_changed: false
`)

	reg := module.NewRegistry()
	reg.Register(&setVarsModule{})
	disp := display.New(nil, 0)
	loader := NewLoader(fs, []string{"/modules"}, reg, disp)
	reg.SetDynamicResolver(loader)

	m, err := reg.Resolve("greet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	v := vars.NewRoot(nil)
	result, _, err := m.Exec(config.GlobalParams{}, map[string]interface{}{"name": "ada"}, v, false)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Output != "hi ada" {
		t.Fatalf("Output = %q, want %q", result.Output, "hi ada")
	}
	if result.Changed {
		t.Fatalf("expected Changed=false")
	}
}

func TestDynamicModuleMissingRequiredParamFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModule(t, fs, "/modules", "greet",
		`
name: greet
params:
  name:
    type: string
    required: true
`,
		`
- set_vars: { __module_output: "hi" }
`)

	reg := module.NewRegistry()
	reg.Register(&setVarsModule{})
	loader := NewLoader(fs, []string{"/modules"}, reg, display.New(nil, 0))
	reg.SetDynamicResolver(loader)

	m, err := reg.Resolve("greet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, _, err = m.Exec(config.GlobalParams{}, map[string]interface{}{}, vars.NewRoot(nil), false)
	if err == nil {
		t.Fatalf("expected a missing-required-param error")
	}
}

func TestDynamicModuleDefaultParamInjected(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModule(t, fs, "/modules", "greet",
		`
name: greet
params:
  name:
    type: string
    default: world
`,
		`
- set_vars: { __module_output: "hi {{ module.params.name }}" }
`)

	reg := module.NewRegistry()
	reg.Register(&setVarsModule{})
	loader := NewLoader(fs, []string{"/modules"}, reg, display.New(nil, 0))
	reg.SetDynamicResolver(loader)

	m, err := reg.Resolve("greet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	result, _, err := m.Exec(config.GlobalParams{}, map[string]interface{}{}, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Output != "hi world" {
		t.Fatalf("Output = %q", result.Output)
	}
}

func TestDynamicModuleCycleDetected(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModule(t, fs, "/modules", "recurse", `name: recurse`, `
- recurse: {}
`)

	reg := module.NewRegistry()
	reg.Register(&setVarsModule{})
	loader := NewLoader(fs, []string{"/modules"}, reg, display.New(nil, 0))
	reg.SetDynamicResolver(loader)

	m, err := reg.Resolve("recurse")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, _, err = m.Exec(config.GlobalParams{}, map[string]interface{}{}, vars.NewRoot(nil), false)
	if err == nil {
		t.Fatalf("expected a cycle-detection error")
	}
}

func TestDynamicModuleShadowingBuiltinRejected(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModule(t, fs, "/modules", "set_vars", `name: set_vars`, `
- set_vars: { __module_output: "nope" }
`)

	reg := module.NewRegistry()
	reg.Register(&setVarsModule{})
	loader := NewLoader(fs, []string{"/modules"}, reg, display.New(nil, 0))
	reg.SetDynamicResolver(loader)

	if _, err := loader.Resolve("set_vars"); err == nil {
		t.Fatalf("expected an error: dynamic module shadows a built-in")
	}
}
