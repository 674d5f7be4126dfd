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
	"github.com/work-obs/rash-go/pkg/jinja"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&AssertModule{})
}

// AssertModule fails the task unless every expression in `that` evaluates
// truthy. Its expressions are raw boolean expressions (like `when`), not
// {{ }} templates: the engine's force-string render of the params leaves
// them as the same text, and each one is then evaluated through
// jinja.IsTruthy against the task's variables.
type AssertModule struct{}

func (m *AssertModule) Name() string             { return "assert" }
func (m *AssertModule) ForceStringOnParams() bool { return true }

func (m *AssertModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}

	exprs, err := stringList(args["that"])
	if err != nil {
		return module.Result{}, nil, err
	}
	if len(exprs) == 0 {
		return module.Result{}, nil, rerr.New(rerr.InvalidData, "assert requires a non-empty 'that' list")
	}

	engine := jinja.New()
	for _, expr := range exprs {
		ok, err := engine.IsTruthy(expr, v)
		if err != nil {
			return module.Result{}, nil, err
		}
		if !ok {
			msg := argString(args, "fail_msg", "")
			if msg == "" {
				msg = "assertion failed: " + expr
			}
			return module.Result{Failed: true, Output: msg}, nil, rerr.Newf(rerr.InvalidData, "%s", msg)
		}
	}

	msg := argString(args, "success_msg", "all assertions passed")
	return module.Result{Changed: false, Output: msg}, nil, nil
}

func stringList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, e := range val {
			s, ok := e.(string)
			if !ok {
				return nil, rerr.New(rerr.InvalidData, "assert 'that' entries must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, rerr.New(rerr.InvalidData, "assert 'that' must be a string or list of strings")
	}
}
