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

package task

import "testing"

func TestParseSingleTaskMapping(t *testing.T) {
	tasks, err := Parse([]byte(`
debug:
  msg: hello
name: greet
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ModuleName != "debug" {
		t.Fatalf("ModuleName = %q", tasks[0].ModuleName)
	}
	if tasks[0].Name != "greet" {
		t.Fatalf("Name = %q", tasks[0].Name)
	}
}

func TestParseSequenceOfTasks(t *testing.T) {
	tasks, err := Parse([]byte(`
- debug:
    msg: one
- debug:
    msg: two
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Index != 0 || tasks[1].Index != 1 {
		t.Fatalf("expected sequential indices, got %d, %d", tasks[0].Index, tasks[1].Index)
	}
}

func TestParseShorthandStringKeptRaw(t *testing.T) {
	tasks, err := Parse([]byte(`command: echo hi`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s, ok := tasks[0].Params.(string); !ok || s != "echo hi" {
		t.Fatalf("expected raw string params, got %#v", tasks[0].Params)
	}
}

func TestParseRejectsTwoModuleKeys(t *testing.T) {
	_, err := Parse([]byte(`
command: echo hi
shell: echo bye
`))
	if err == nil {
		t.Fatalf("expected an error for two module keys on one task")
	}
}

func TestParseLoopMappingBecomesKeyValuePairs(t *testing.T) {
	tasks, err := Parse([]byte(`
debug:
  msg: "{{ item }}"
loop:
  a: 1
  b: 2
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pairs, ok := tasks[0].Loop.([]KV)
	if !ok {
		t.Fatalf("expected []KV loop, got %#v", tasks[0].Loop)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Key != "a" || pairs[1].Key != "b" {
		t.Fatalf("expected encounter order a, b; got %v, %v", pairs[0].Key, pairs[1].Key)
	}
}

func TestParseWhenDefaultsToTrueWhenBare(t *testing.T) {
	tasks, err := Parse([]byte(`
debug:
  msg: hi
when:
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tasks[0].When != "true" {
		t.Fatalf("When = %q, want \"true\"", tasks[0].When)
	}
}

func TestParseModifiersCarryThrough(t *testing.T) {
	tasks, err := Parse([]byte(`
command: echo hi
register: r
ignore_errors: true
become: true
become_user: deploy
changed_when: "r.rc == 0"
failed_when: "r.rc != 0"
check_mode: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tk := tasks[0]
	if tk.Register != "r" || !tk.IgnoreErrors || !tk.Become || !tk.BecomeSet {
		t.Fatalf("unexpected task: %+v", tk)
	}
	if tk.BecomeUser != "deploy" {
		t.Fatalf("BecomeUser = %q", tk.BecomeUser)
	}
	if tk.ChangedWhen != "r.rc == 0" || tk.FailedWhen != "r.rc != 0" {
		t.Fatalf("unexpected changed_when/failed_when: %+v", tk)
	}
	if tk.CheckMode == nil || *tk.CheckMode != false {
		t.Fatalf("CheckMode = %v", tk.CheckMode)
	}
}

func TestParseEmptyDocumentYieldsNoTasks(t *testing.T) {
	tasks, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

func TestParseRejectsTaskWithNoModuleKey(t *testing.T) {
	_, err := Parse([]byte(`
name: just a name
when: "true"
`))
	if err == nil {
		t.Fatalf("expected an error for a task with no module key")
	}
}
