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

// Package display reports per-task outcomes as single status lines:
// "ok", "changed: <output>", "skipped", "failed: <message>". One reporter
// type, gated by a verbosity level; there is no pluggable callback
// mechanism in this engine.
package display

import (
	"fmt"
	"io"
)

// Status is the outcome of one task report.
type Status string

const (
	StatusOK      Status = "ok"
	StatusChanged Status = "changed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Report is one line of task outcome.
type Report struct {
	TaskName string
	Status   Status
	Output   string
	Cause    error
}

// Display writes status lines to Out, gated by Verbosity, and separately
// writes change/diff detail to Diff when it is non-nil. The diff sink is
// off by default and enabled by a flag.
type Display struct {
	Out       io.Writer
	Diff      io.Writer
	Verbosity int
}

// New creates a Display writing to out with the diff sink disabled.
func New(out io.Writer, verbosity int) *Display {
	return &Display{Out: out, Verbosity: verbosity}
}

// EnableDiff turns on the diff sink, writing to w.
func (d *Display) EnableDiff(w io.Writer) {
	d.Diff = w
}

// Report writes one task-outcome line.
func (d *Display) Report(r Report) {
	if d == nil || d.Out == nil {
		return
	}
	switch r.Status {
	case StatusChanged:
		fmt.Fprintf(d.Out, "changed: %s: %s\n", r.TaskName, r.Output)
	case StatusSkipped:
		fmt.Fprintf(d.Out, "skipped: %s\n", r.TaskName)
	case StatusFailed:
		if r.Cause != nil {
			fmt.Fprintf(d.Out, "failed: %s: %s\n", r.TaskName, r.Cause.Error())
		} else {
			fmt.Fprintf(d.Out, "failed: %s\n", r.TaskName)
		}
	default:
		if d.Verbosity > 0 {
			fmt.Fprintf(d.Out, "ok: %s\n", r.TaskName)
		}
	}
}

// Diffed records a changed/added/removed item. No-op unless EnableDiff
// was called.
func (d *Display) Diffed(taskName, kind, detail string) {
	if d == nil || d.Diff == nil {
		return
	}
	fmt.Fprintf(d.Diff, "%s %s: %s\n", kind, taskName, detail)
}

// Tracef emits a trace-level message (module-search warnings, dynamic
// loader's undeclared-param notices) gated on verbosity >= 3.
func (d *Display) Tracef(format string, args ...interface{}) {
	if d == nil || d.Out == nil || d.Verbosity < 3 {
		return
	}
	fmt.Fprintf(d.Out, "trace: "+format+"\n", args...)
}
