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

package builtin

import (
	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&SetVarsModule{})
}

// SetVarsModule injects its rendered params directly as a vars_delta; it
// never changes host state. This is how dynamic modules populate the
// conventional __module_changed/__module_output/__module_extra sink names:
// `set_vars: { __module_output: "..." }` in a main.yml.
type SetVarsModule struct{}

func (m *SetVarsModule) Name() string             { return "set_vars" }
func (m *SetVarsModule) ForceStringOnParams() bool { return false }

func (m *SetVarsModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}
	return module.Result{Changed: false}, args, nil
}
