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

// Package task parses a script's YAML task list into Task values. A task
// mapping has exactly one module-name key; every other key must come from
// the fixed modifier vocabulary. Module-name resolution is deferred to
// execution time so scripts can reference dynamic modules that are only
// discovered lazily.
package task

import (
	"gopkg.in/yaml.v3"

	"github.com/work-obs/rash-go/pkg/jinja"
	"github.com/work-obs/rash-go/pkg/rerr"
)

// modifiers is the fixed, closed set of non-module task keys.
var modifiers = map[string]bool{
	"name":          true,
	"when":          true,
	"loop":          true,
	"register":      true,
	"vars":          true,
	"become":        true,
	"become_user":   true,
	"ignore_errors": true,
	"changed_when":  true,
	"failed_when":   true,
	"check_mode":    true,
}

// Task is one step of a parsed script.
type Task struct {
	Index        int
	Name         string
	ModuleName   string
	Params       interface{} // string, *jinja.OrderedMap, or []interface{}
	When         string
	Loop         interface{} // []interface{}, []KV, or a templated string resolved at run time
	Register     string
	Vars         map[string]interface{}
	Become       bool
	BecomeSet    bool
	BecomeUser   string
	IgnoreErrors bool
	ChangedWhen  string
	FailedWhen   string
	CheckMode    *bool
}

// KV is one pair of a loop derived from a mapping (`loop: {a: 1, b: 2}` is
// normalized into an ordered sequence of {key, value} pairs).
type KV struct {
	Key   string
	Value interface{}
}

// Parse decodes a script document into its task list. A single task mapping
// is promoted to a one-element list.
func Parse(doc []byte) ([]Task, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, rerr.Wrap(rerr.InvalidData, err, "parsing script YAML")
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	body := root.Content[0]

	var nodes []*yaml.Node
	switch body.Kind {
	case yaml.SequenceNode:
		nodes = body.Content
	case yaml.MappingNode:
		nodes = []*yaml.Node{body}
	default:
		return nil, rerr.New(rerr.InvalidData, "script body must be a task or a list of tasks")
	}

	tasks := make([]Task, 0, len(nodes))
	for i, n := range nodes {
		t, err := parseOne(n)
		if err != nil {
			return nil, err
		}
		t.Index = i
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func parseOne(n *yaml.Node) (Task, error) {
	if n.Kind != yaml.MappingNode {
		return Task{}, rerr.New(rerr.InvalidData, "each task must be a mapping")
	}

	t := Task{}
	var moduleKey string
	var moduleValNode *yaml.Node

	for i := 0; i < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		key := keyNode.Value

		if modifiers[key] {
			if err := applyModifier(&t, key, valNode); err != nil {
				return Task{}, err
			}
			continue
		}

		if moduleKey != "" {
			return Task{}, rerr.Newf(rerr.InvalidData,
				"task has more than one module key ('%s' and '%s')", moduleKey, key)
		}
		moduleKey = key
		moduleValNode = valNode
	}

	if moduleKey == "" {
		return Task{}, rerr.New(rerr.InvalidData, "task has no module key")
	}
	t.ModuleName = moduleKey
	t.Params = paramsFromNode(moduleValNode)
	return t, nil
}

func applyModifier(t *Task, key string, n *yaml.Node) error {
	switch key {
	case "name":
		t.Name = n.Value
	case "when":
		t.When = scalarOrTrue(n)
	case "loop":
		t.Loop = loopFromNode(n)
	case "register":
		t.Register = n.Value
	case "vars":
		m, err := decodeMap(n)
		if err != nil {
			return err
		}
		t.Vars = m
	case "become":
		var b bool
		if err := n.Decode(&b); err != nil {
			return rerr.Wrap(rerr.InvalidData, err, "decoding 'become'")
		}
		t.Become = b
		t.BecomeSet = true
	case "become_user":
		t.BecomeUser = n.Value
	case "ignore_errors":
		var b bool
		if err := n.Decode(&b); err != nil {
			return rerr.Wrap(rerr.InvalidData, err, "decoding 'ignore_errors'")
		}
		t.IgnoreErrors = b
	case "changed_when":
		t.ChangedWhen = n.Value
	case "failed_when":
		t.FailedWhen = n.Value
	case "check_mode":
		var b bool
		if err := n.Decode(&b); err != nil {
			return rerr.Wrap(rerr.InvalidData, err, "decoding 'check_mode'")
		}
		t.CheckMode = &b
	}
	return nil
}

func scalarOrTrue(n *yaml.Node) string {
	if n.Value == "" {
		return "true"
	}
	return n.Value
}

// paramsFromNode keeps a bare scalar module value as its raw string (the
// engine promotes it to the `_` shorthand key at dispatch time unless the
// module accepts raw strings), decodes a mapping preserving key order, and
// decodes a sequence element-wise.
func paramsFromNode(n *yaml.Node) interface{} {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.MappingNode:
		return orderedFromNode(n)
	case yaml.SequenceNode:
		return valueFromNode(n)
	default:
		return n.Value
	}
}

func orderedFromNode(n *yaml.Node) *jinja.OrderedMap {
	om := jinja.NewOrderedMap()
	for i := 0; i < len(n.Content); i += 2 {
		k := n.Content[i].Value
		om.Set(k, valueFromNode(n.Content[i+1]))
	}
	return om
}

func valueFromNode(n *yaml.Node) interface{} {
	switch n.Kind {
	case yaml.MappingNode:
		return orderedFromNode(n)
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, valueFromNode(c))
		}
		return out
	default:
		var v interface{}
		_ = n.Decode(&v)
		return v
	}
}

func loopFromNode(n *yaml.Node) interface{} {
	switch n.Kind {
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, valueFromNode(c))
		}
		return out
	case yaml.MappingNode:
		pairs := make([]KV, 0, len(n.Content)/2)
		for i := 0; i < len(n.Content); i += 2 {
			k := n.Content[i].Value
			pairs = append(pairs, KV{Key: k, Value: valueFromNode(n.Content[i+1])})
		}
		return pairs
	default:
		// a templated string, resolved to a sequence by the engine at run time
		return n.Value
	}
}

func decodeMap(n *yaml.Node) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if n.Kind != yaml.MappingNode {
		return m, nil
	}
	for i := 0; i < len(n.Content); i += 2 {
		m[n.Content[i].Value] = valueFromNode(n.Content[i+1])
	}
	return m, nil
}
