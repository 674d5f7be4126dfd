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

// Package vars implements the engine's variable context: an
// immutable-by-shadowing overlay tree. Each scope (task vars:, loop item,
// register binding, dynamic-module invocation) layers a new Context on top
// of its parent rather than copying or mutating it, so a child scope can
// never corrupt state a sibling or parent still holds a reference to.
//
// There is exactly one axis of precedence: lexical nesting. This engine has
// no remote hosts or inventory groups to rank.
package vars

// Context is one layer of the overlay. A nil *Context is a valid, empty
// root.
type Context struct {
	parent *Context
	data   map[string]interface{}
}

// NewRoot creates the bottom of the overlay chain.
func NewRoot(data map[string]interface{}) *Context {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Context{data: data}
}

// Overlay returns a new child Context layering delta on top of c. c itself
// is never modified, so earlier references to c continue to observe the
// pre-overlay state.
func (c *Context) Overlay(delta map[string]interface{}) *Context {
	if len(delta) == 0 {
		return c
	}
	cp := make(map[string]interface{}, len(delta))
	for k, v := range delta {
		cp[k] = v
	}
	return &Context{parent: c, data: cp}
}

// Lookup resolves a dotted path, walking the overlay chain from the current
// layer up toward root so a child's binding shadows a parent's.
func (c *Context) Lookup(path string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	root, ok := c.lookupTop(segments[0])
	if !ok {
		return nil, false
	}
	return descend(root, segments[1:])
}

func (c *Context) lookupTop(name string) (interface{}, bool) {
	for layer := c; layer != nil; layer = layer.parent {
		if v, ok := layer.data[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func descend(v interface{}, segments []string) (interface{}, bool) {
	cur := v
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// Flatten collapses the overlay chain into a single map, parent values
// first so children shadow them, the shape the template engine expects as
// its render-time variable set.
func (c *Context) Flatten() map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	var chain []*Context
	for layer := c; layer != nil; layer = layer.parent {
		chain = append(chain, layer)
	}
	out := make(map[string]interface{})
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].data {
			out[k] = v
		}
	}
	return out
}

// Merge deep-merges b onto a, b winning on scalar conflicts, maps merging
// recursively, and slices replacing outright. pkg/engine does not call it:
// vars:, register bindings and a module's vars_delta are layered with
// Overlay, so a new binding replaces a whole top-level key instead of being
// deep-merged into an existing map.
func Merge(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, bv := range b {
		if av, exists := out[k]; exists {
			aMap, aOk := av.(map[string]interface{})
			bMap, bOk := bv.(map[string]interface{})
			if aOk && bOk {
				out[k] = Merge(aMap, bMap)
				continue
			}
		}
		out[k] = bv
	}
	return out
}
