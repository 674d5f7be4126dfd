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

// Package engine drives a parsed task sequence: per task it applies vars,
// evaluates when, renders and iterates loop, dispatches to the named
// module, and folds vars_delta/register back into the context for the next
// task. Execution is single-threaded, sequential, and recursive (dynamic
// modules re-enter Run with a child scope): later tasks depend on earlier
// register bindings, so concurrent dispatch would race task N's write
// against task N+1's read.
package engine

import (
	"fmt"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/display"
	"github.com/work-obs/rash-go/pkg/jinja"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/task"
	"github.com/work-obs/rash-go/pkg/vars"
)

// implicitResultName binds a task's own result for changed_when/failed_when
// evaluation when the task has no register: name. Not otherwise visible to
// later tasks.
const implicitResultName = "result"

// Run drives tasks in order against v, dispatching through reg and
// reporting through disp. chain is the stack of active dynamic-module
// names for cycle detection; top-level callers pass nil.
// rerr.EmptyTaskStack or rerr.GracefulExit surfacing from any task is a
// normal, quiet end of the loop, not a failure.
func Run(tasks []task.Task, v *vars.Context, global config.GlobalParams, reg *module.Registry, disp *display.Display, chain []string) (*vars.Context, []display.Report, error) {
	je := jinja.New()
	reports := make([]display.Report, 0, len(tasks))

	for _, t := range tasks {
		nv, taskReports, err := runTask(t, v, global, reg, je, disp, chain)
		v = nv
		reports = append(reports, taskReports...)
		if err != nil {
			if rerr.Is(err, rerr.EmptyTaskStack) || rerr.Is(err, rerr.GracefulExit) {
				return v, reports, nil
			}
			return v, reports, err
		}
	}
	return v, reports, nil
}

func runTask(t task.Task, v *vars.Context, global config.GlobalParams, reg *module.Registry, je *jinja.Engine, disp *display.Display, chain []string) (*vars.Context, []display.Report, error) {
	label := taskLabel(t)

	scope := v
	if len(t.Vars) > 0 {
		rendered, err := je.RenderValue(t.Vars, scope, false)
		if err != nil {
			return v, nil, err
		}
		if m, ok := rendered.(map[string]interface{}); ok {
			scope = scope.Overlay(m)
		}
	}

	if t.When != "" {
		ok, err := je.IsTruthy(t.When, scope)
		if err != nil {
			return scope, nil, err
		}
		if !ok {
			rep := display.Report{TaskName: label, Status: display.StatusSkipped}
			disp.Report(rep)
			return scope, []display.Report{rep}, nil
		}
	}

	if t.Loop != nil {
		return runLoop(t, label, scope, global, reg, je, disp, chain)
	}

	result, vdelta, dispatchErr := dispatchOnce(t, scope, global, reg, je, chain)
	return finishTask(t, label, scope, result, vdelta, dispatchErr, je, disp)
}

// dispatchOnce resolves the module, promotes bare-string shorthand unless
// the module accepts it raw, renders params, and calls Exec with the task's
// effective (possibly overridden) become and check-mode settings.
func dispatchOnce(t task.Task, v *vars.Context, global config.GlobalParams, reg *module.Registry, je *jinja.Engine, chain []string) (module.Result, map[string]interface{}, error) {
	m, err := reg.Resolve(t.ModuleName)
	if err != nil {
		return module.Result{}, nil, err
	}

	params := t.Params
	if _, isString := params.(string); isString {
		accepter, ok := m.(module.RawStringAccepter)
		if !ok || !accepter.RawStringParam() {
			params = map[string]interface{}{"_": params}
		}
	}

	rendered, err := je.RenderValue(params, v, m.ForceStringOnParams())
	if err != nil {
		return module.Result{}, nil, err
	}

	taskGlobal := global
	if t.BecomeSet {
		taskGlobal.Become = t.Become
	}
	if t.BecomeUser != "" {
		taskGlobal.BecomeUser = t.BecomeUser
	}

	checkMode := global.CheckMode
	if t.CheckMode != nil {
		checkMode = *t.CheckMode
	}

	if ca, ok := m.(module.ChainAware); ok {
		return ca.ExecChain(taskGlobal, rendered, v, checkMode, chain)
	}
	return m.Exec(taskGlobal, rendered, v, checkMode)
}

// finishTask completes a non-loop task: merge vars_delta, bind register,
// evaluate changed_when/failed_when, report, and decide abort-vs-continue
// from ignore_errors.
func finishTask(t task.Task, label string, scope *vars.Context, result module.Result, vdelta map[string]interface{}, dispatchErr error, je *jinja.Engine, disp *display.Display) (*vars.Context, []display.Report, error) {
	if dispatchErr != nil && (rerr.Is(dispatchErr, rerr.EmptyTaskStack) || rerr.Is(dispatchErr, rerr.GracefulExit)) {
		return scope, nil, dispatchErr
	}

	failed := result.Failed || dispatchErr != nil
	if dispatchErr != nil {
		result.Failed = true
	}

	next := scope
	if len(vdelta) > 0 {
		next = next.Overlay(vdelta)
	}

	if t.ChangedWhen != "" || t.FailedWhen != "" {
		evalVars := next.Overlay(map[string]interface{}{
			bindNameFor(t): resultToMap(result),
		})
		if t.ChangedWhen != "" {
			ok, err := je.IsTruthy(t.ChangedWhen, evalVars)
			if err != nil {
				return scope, nil, err
			}
			result.Changed = ok
		}
		if t.FailedWhen != "" {
			ok, err := je.IsTruthy(t.FailedWhen, evalVars)
			if err != nil {
				return scope, nil, err
			}
			failed = ok
			result.Failed = ok
		}
	}

	if t.Register != "" {
		regMap := resultToMap(result)
		next = next.Overlay(map[string]interface{}{t.Register: regMap})
	}

	rep := display.Report{TaskName: label, Status: statusFor(failed, result.Changed), Output: result.Output}
	if failed && dispatchErr != nil {
		rep.Cause = dispatchErr
	}
	disp.Report(rep)
	if !failed && result.Changed {
		disp.Diffed(label, "changed", result.Output)
	}

	if failed {
		if t.IgnoreErrors {
			return next, []display.Report{rep}, nil
		}
		if dispatchErr == nil {
			dispatchErr = rerr.Newf(rerr.Other, "task failed: %s", label)
		}
		return next, []display.Report{rep}, dispatchErr
	}

	return next, []display.Report{rep}, nil
}

// runLoop renders loop, iterates binding item (and key/value for
// mapping-derived entries) into a child overlay, executes the task body,
// and accumulates per-iteration results: changed if any iteration changed,
// failed on first failure unless ignore_errors.
func runLoop(t task.Task, label string, scope *vars.Context, global config.GlobalParams, reg *module.Registry, je *jinja.Engine, disp *display.Display, chain []string) (*vars.Context, []display.Report, error) {
	items, keyed, err := resolveLoopItems(t.Loop, scope, je)
	if err != nil {
		return scope, nil, err
	}

	reports := make([]display.Report, 0, len(items))
	results := make([]interface{}, 0, len(items))
	overallChanged := false
	overallFailed := false
	baseline := scope

	for i, it := range items {
		item := it.item
		iterVars := map[string]interface{}{"item": item}
		if keyed {
			iterVars["key"] = it.key
			iterVars["value"] = item
			iterVars["item"] = map[string]interface{}{"key": it.key, "value": item}
		}
		childScope := baseline.Overlay(iterVars)

		result, vdelta, dispatchErr := dispatchOnce(t, childScope, global, reg, je, chain)
		if dispatchErr != nil && (rerr.Is(dispatchErr, rerr.EmptyTaskStack) || rerr.Is(dispatchErr, rerr.GracefulExit)) {
			return baseline, reports, dispatchErr
		}

		failed := result.Failed || dispatchErr != nil
		if dispatchErr != nil {
			result.Failed = true
		}

		iterScope := childScope
		if len(vdelta) > 0 {
			iterScope = iterScope.Overlay(vdelta)
		}

		if t.ChangedWhen != "" || t.FailedWhen != "" {
			evalVars := iterScope.Overlay(map[string]interface{}{
				bindNameFor(t): resultToMap(result),
			})
			if t.ChangedWhen != "" {
				ok, cerr := je.IsTruthy(t.ChangedWhen, evalVars)
				if cerr != nil {
					return baseline, reports, cerr
				}
				result.Changed = ok
			}
			if t.FailedWhen != "" {
				ok, cerr := je.IsTruthy(t.FailedWhen, evalVars)
				if cerr != nil {
					return baseline, reports, cerr
				}
				failed = ok
				result.Failed = ok
			}
		}

		if len(vdelta) > 0 {
			baseline = baseline.Overlay(vdelta)
		}

		overallChanged = overallChanged || result.Changed
		overallFailed = overallFailed || failed
		results = append(results, resultToMap(result))

		rep := display.Report{
			TaskName: fmt.Sprintf("%s [%d]", label, i),
			Status:   statusFor(failed, result.Changed),
			Output:   result.Output,
		}
		if failed && dispatchErr != nil {
			rep.Cause = dispatchErr
		}
		disp.Report(rep)
		if !failed && result.Changed {
			disp.Diffed(rep.TaskName, "changed", result.Output)
		}
		reports = append(reports, rep)

		if failed && !t.IgnoreErrors {
			if dispatchErr == nil {
				dispatchErr = rerr.Newf(rerr.Other, "task failed: %s", rep.TaskName)
			}
			return baseline, reports, dispatchErr
		}
	}

	next := baseline
	if t.Register != "" {
		next = next.Overlay(map[string]interface{}{t.Register: map[string]interface{}{
			"changed": overallChanged,
			"failed":  overallFailed,
			"results": results,
		}})
	}

	return next, reports, nil
}

type loopItem struct {
	item interface{}
	key  string
}

// resolveLoopItems renders t.Loop into an ordered item list: a sequence
// renders element-wise; a mapping becomes an ordered {key, value} sequence;
// a bare string is a deferred template that must render to a sequence.
func resolveLoopItems(loop interface{}, scope *vars.Context, je *jinja.Engine) ([]loopItem, bool, error) {
	switch l := loop.(type) {
	case []task.KV:
		out := make([]loopItem, 0, len(l))
		for _, kv := range l {
			rendered, err := je.RenderValue(kv.Value, scope, false)
			if err != nil {
				return nil, false, err
			}
			out = append(out, loopItem{item: rendered, key: kv.Key})
		}
		return out, true, nil
	case []interface{}:
		rendered, err := je.RenderValue(l, scope, false)
		if err != nil {
			return nil, false, err
		}
		seq, _ := rendered.([]interface{})
		out := make([]loopItem, 0, len(seq))
		for _, v := range seq {
			out = append(out, loopItem{item: v})
		}
		return out, false, nil
	case string:
		seq, err := je.ResolveSequence(l, scope)
		if err != nil {
			return nil, false, err
		}
		out := make([]loopItem, 0, len(seq))
		for _, v := range seq {
			out = append(out, loopItem{item: v})
		}
		return out, false, nil
	default:
		return nil, false, rerr.New(rerr.InvalidData, "loop value must be a sequence, mapping, or templated string")
	}
}

func bindNameFor(t task.Task) string {
	if t.Register != "" {
		return t.Register
	}
	return implicitResultName
}

func resultToMap(r module.Result) map[string]interface{} {
	return map[string]interface{}{
		"changed": r.Changed,
		"failed":  r.Failed,
		"output":  r.Output,
		"extra":   r.Extra,
	}
}

func statusFor(failed, changed bool) display.Status {
	switch {
	case failed:
		return display.StatusFailed
	case changed:
		return display.StatusChanged
	default:
		return display.StatusOK
	}
}

func taskLabel(t task.Task) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ModuleName
}
