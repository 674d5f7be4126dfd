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

// Package builtin implements the engine's concrete built-in modules:
// command, shell, file, copy, service, debug, set_vars, assert.
//
// The argument helpers here operate on a module's already-rendered params
// map; type coercion is deliberately loose since rendering may or may not
// have re-typed scalars depending on the module's force-string setting.
package builtin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/work-obs/rash-go/pkg/rerr"
)

func asMap(rawParams interface{}) (map[string]interface{}, error) {
	switch v := rawParams.(type) {
	case map[string]interface{}:
		return v, nil
	case nil:
		return map[string]interface{}{}, nil
	case string:
		return map[string]interface{}{"_raw_params": v}, nil
	default:
		return nil, rerr.Newf(rerr.InvalidData, "module parameters must be a mapping, got %T", rawParams)
	}
}

func argString(args map[string]interface{}, key, def string) string {
	if val, ok := args[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	}
	return def
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if val, ok := args[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true") || v == "yes" || v == "1"
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	if val, ok := args[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return def
}

func validateRequired(args map[string]interface{}, required ...string) error {
	var missing []string
	for _, req := range required {
		if _, exists := args[req]; !exists {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return rerr.Newf(rerr.InvalidData, "missing required arguments: %s", strings.Join(missing, ", "))
	}
	return nil
}

func validateChoice(args map[string]interface{}, arg string, choices ...string) error {
	val, exists := args[arg]
	if !exists {
		return nil
	}
	strVal := fmt.Sprintf("%v", val)
	for _, choice := range choices {
		if strVal == choice {
			return nil
		}
	}
	return rerr.Newf(rerr.InvalidData, "invalid value '%s' for argument '%s'; valid choices are: %s",
		strVal, arg, strings.Join(choices, ", "))
}
