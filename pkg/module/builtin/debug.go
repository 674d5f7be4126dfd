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

// debug returns a rendered message or a named variable's value as the
// task's output without touching host state.
package builtin

import (
	"fmt"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&DebugModule{})
}

// DebugModule reports a message as its Output; it never changes host state.
type DebugModule struct{}

func (m *DebugModule) Name() string             { return "debug" }
func (m *DebugModule) ForceStringOnParams() bool { return true }

func (m *DebugModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}

	msg := argString(args, "msg", "")
	if msg == "" {
		if varName := argString(args, "var", ""); varName != "" {
			val, ok := v.Lookup(varName)
			if !ok {
				return module.Result{}, nil, rerr.Newf(rerr.NotFound, "debug: var '%s' is undefined", varName)
			}
			msg = fmt.Sprintf("%v", val)
		}
	}

	return module.Result{Changed: false, Output: msg}, nil, nil
}
