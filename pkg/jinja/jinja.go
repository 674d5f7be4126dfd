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

// Package jinja adapts github.com/deicod/gojinja, an embedded Jinja2-compatible
// evaluator, to the rendering semantics the task engine needs: omit-aware
// mapping renders, strict-undefined enforcement, and re-typed (non-string)
// scalar results.
package jinja

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gojinja "github.com/deicod/gojinja/runtime"
	"gopkg.in/yaml.v3"

	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

// OmitSentinel is substituted for the `omit` global. A rendered scalar equal
// to this value causes the owning mapping key to be dropped by
// renderOrderedMap, which is how a template leaves a module argument out
// entirely. cmd/rash also seeds it as the `omit` variable.
const OmitSentinel = "OMIT_THIS_VARIABLE"

// Engine wraps a configured gojinja environment.
type Engine struct {
	env *gojinja.Environment
}

// New builds an Engine with the fixed configuration every render in this
// engine depends on.
func New() *Engine {
	env := gojinja.NewEnvironment()
	env.SetKeepTrailingNewline(true)
	env.AddGlobal("omit", OmitSentinel)
	return &Engine{env: env}
}

// AddGlobal exposes extra named values (rash.*, env) to every template
// rendered through this Engine.
func (e *Engine) AddGlobal(name string, value interface{}) {
	e.env.AddGlobal(name, value)
}

// RenderString renders a single Jinja template string against v. On failure
// it enriches the error with the offending variable's dotted path so the
// message names both the variable and the template it appeared in.
func (e *Engine) RenderString(tmpl string, v *vars.Context) (string, error) {
	if err := e.checkUndefined(tmpl, v); err != nil {
		return "", err
	}
	t, err := e.env.NewTemplate(tmpl)
	if err != nil {
		return "", rerr.Wrapf(rerr.JinjaRenderError, err, "parsing template: %s", tmpl)
	}
	flat := v.Flatten()
	if _, ok := flat["omit"]; !ok {
		flat["omit"] = OmitSentinel
	}
	out, err := e.env.ExecuteToString(t, flat)
	if err != nil {
		return "", e.enrichRenderError(err, tmpl, v)
	}
	return out, nil
}

// checkUndefined enforces strict-undefined evaluation: any {{ path }}
// reference in tmpl whose path does not resolve against v is an error,
// reported before gojinja ever executes the template. gojinja's own
// undefined handling is permissive (DebugUndefined renders a placeholder
// rather than failing), so strictness is enforced here at the adapter layer
// instead of relying on an environment-level undefined policy. A reference
// piped through a `default(...)` filter is exempt, since supplying a
// fallback is exactly how a template author opts out of strictness, as is
// a name registered as an environment global (omit).
func (e *Engine) checkUndefined(tmpl string, v *vars.Context) error {
	for _, match := range varRefPattern.FindAllStringSubmatch(tmpl, -1) {
		path, filters := match[1], match[2]
		if strings.HasPrefix(path, "range") || strings.HasPrefix(path, "debug") {
			continue
		}
		if _, ok := e.env.GetGlobal(firstSegment(path)); ok {
			continue
		}
		if strings.Contains(filters, "default(") || strings.Contains(filters, "default ") {
			continue
		}
		if _, ok := v.Lookup(path); !ok {
			return rerr.Newf(rerr.JinjaRenderError, "undefined variable '%s' in template: %s", path, tmpl)
		}
	}
	return nil
}

// IsTruthy evaluates expr as a boolean-producing Jinja expression: wrap it
// in an {% if %} and compare the output against the literal string "false".
func (e *Engine) IsTruthy(expr string, v *vars.Context) (bool, error) {
	wrapped := fmt.Sprintf("{%% if %s %%}true{%% else %%}false{%% endif %%}", expr)
	out, err := e.RenderString(wrapped, v)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "false", nil
}

// OrderedMap preserves the on-disk key order of a YAML mapping. Rendering
// depends on this order: earlier keys are visible to later keys' templates,
// which only means something if "earlier" is a well-defined, stable notion.
// A plain Go map has none.
type OrderedMap struct {
	Keys   []string
	Values map[string]interface{}
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{Values: make(map[string]interface{})}
}

func (m *OrderedMap) Set(key string, value interface{}) {
	if _, exists := m.Values[key]; !exists {
		m.Keys = append(m.Keys, key)
	}
	m.Values[key] = value
}

// ToMap discards ordering; only safe once nothing downstream needs it.
func (m *OrderedMap) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Keys))
	for _, k := range m.Keys {
		out[k] = m.Values[k]
	}
	return out
}

// RenderValue renders a whole value tree: scalars render through
// RenderString (and are re-parsed as YAML unless forceString); sequences
// render element-wise, propagating any element error including omit
// (sequences do not filter omit); mappings render key-by-key, folding each
// rendered pair into the working vars before the next key renders, and DO
// drop a key whose rendered value is the omit sentinel.
func (e *Engine) RenderValue(value interface{}, v *vars.Context, forceString bool) (interface{}, error) {
	switch val := value.(type) {
	case string:
		return e.renderScalarString(val, v, forceString)
	case *OrderedMap:
		return e.renderOrderedMap(val, v, forceString)
	case map[string]interface{}:
		return e.renderOrderedMap(mapToOrdered(val), v, forceString)
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, elem := range val {
			rendered, err := e.RenderValue(elem, v, forceString)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered)
		}
		return out, nil
	default:
		// numbers, bools, nil pass through untouched.
		return value, nil
	}
}

func (e *Engine) renderScalarString(s string, v *vars.Context, forceString bool) (interface{}, error) {
	rendered, err := e.RenderString(s, v)
	if err != nil {
		return nil, err
	}
	if rendered == OmitSentinel {
		return nil, rerr.New(rerr.OmitParam, "parameter omitted via `omit`")
	}
	if forceString {
		return rendered, nil
	}
	return reparseScalar(rendered), nil
}

// renderOrderedMap renders a mapping key by key in declaration order: each
// successfully-rendered (key, value) pair is merged into the working vars
// context before the NEXT key is rendered, so
// later keys may reference earlier, already-rendered keys. A key whose
// value renders to the omit sentinel is dropped rather than propagated as
// an error.
func (e *Engine) renderOrderedMap(m *OrderedMap, v *vars.Context, forceString bool) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m.Keys))
	working := v
	for _, key := range m.Keys {
		rendered, err := e.RenderValue(m.Values[key], working, forceString)
		if err != nil {
			if rerr.Is(err, rerr.OmitParam) {
				continue
			}
			return nil, err
		}
		out[key] = rendered
		working = working.Overlay(map[string]interface{}{key: rendered})
	}
	return out, nil
}

// mapToOrdered provides a deterministic (sorted) fallback order for plain
// Go maps that did not arrive through the YAML ordered decoder, e.g. a
// task's vars: block, which pkg/task decodes into a plain map.
func mapToOrdered(m map[string]interface{}) *OrderedMap {
	om := NewOrderedMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		om.Set(k, m[k])
	}
	return om
}

// reparseScalar recovers non-string types (numbers, bools, null, nested
// structures) from a rendered template's plain-text output by re-parsing it
// as YAML.
func reparseScalar(rendered string) interface{} {
	var parsed interface{}
	if err := yaml.Unmarshal([]byte(rendered), &parsed); err != nil {
		return rendered
	}
	if parsed == nil && rendered != "" && rendered != "null" && rendered != "~" {
		return rendered
	}
	if s, ok := parsed.(string); ok {
		return s
	}
	if parsed == nil {
		return rendered
	}
	return parsed
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

var varRefPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*(\|[^}]*)?\}\}`)

var wholeVarPattern = regexp.MustCompile(`^\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}$`)

// ResolveSequence renders tmpl, a `loop:` value given as a templated
// string, into a sequence. When tmpl is exactly one
// {{ path }} reference with no filters, the path's raw value is returned
// directly so a list- or map-typed variable survives without a string
// round trip; otherwise the rendered text is re-parsed as YAML, matching
// RenderValue's non-force-string behavior.
func (e *Engine) ResolveSequence(tmpl string, v *vars.Context) ([]interface{}, error) {
	if m := wholeVarPattern.FindStringSubmatch(strings.TrimSpace(tmpl)); m != nil {
		val, ok := v.Lookup(m[1])
		if !ok {
			return nil, rerr.Newf(rerr.JinjaRenderError, "undefined variable '%s' in template: %s", m[1], tmpl)
		}
		seq, ok := val.([]interface{})
		if !ok {
			return nil, rerr.Newf(rerr.InvalidData, "loop variable '%s' is not a sequence", m[1])
		}
		return seq, nil
	}

	rendered, err := e.RenderValue(tmpl, v, false)
	if err != nil {
		return nil, err
	}
	seq, ok := rendered.([]interface{})
	if !ok {
		return nil, rerr.Newf(rerr.InvalidData, "loop expression did not render to a sequence: %s", tmpl)
	}
	return seq, nil
}

// enrichRenderError scans the template text for {{ path }} references and
// reports the first one that does not resolve against v, so the final
// message names both the dotted path and the original template. Reached
// only for render failures checkUndefined did not already catch (e.g. a
// filter or control-flow error).
func (e *Engine) enrichRenderError(cause error, tmpl string, v *vars.Context) error {
	for _, match := range varRefPattern.FindAllStringSubmatch(tmpl, -1) {
		path := match[1]
		if strings.HasPrefix(path, "range") || strings.HasPrefix(path, "debug") {
			continue
		}
		if _, ok := e.env.GetGlobal(firstSegment(path)); ok {
			continue
		}
		if _, ok := v.Lookup(path); !ok {
			return rerr.Wrapf(rerr.JinjaRenderError, cause,
				"undefined variable '%s' in template: %s", path, tmpl)
		}
	}
	return rerr.Wrapf(rerr.JinjaRenderError, cause, "rendering template: %s", tmpl)
}
