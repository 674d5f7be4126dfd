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
	"os"
	"path/filepath"
	"testing"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/vars"
)

func TestFileTouchCreatesThenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "touched")
	params := map[string]interface{}{"path": path, "state": "touch"}

	m := &FileModule{}

	res, _, err := m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("first touch: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected first touch to report changed")
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected %s to exist: %v", path, statErr)
	}

	res, _, err = m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("second touch: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected second touch to be a no-op")
	}
}

func TestFileCheckModeNeverCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub")
	params := map[string]interface{}{"path": path, "state": "directory"}

	m := &FileModule{}
	res, _, err := m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), true)
	if err != nil {
		t.Fatalf("check-mode exec: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected check mode to predict a change")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("check mode must not create %s", path)
	}
}

func TestFileAbsentRemovesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	m := &FileModule{}
	res, _, err := m.Exec(config.GlobalParams{}, map[string]interface{}{"path": path, "state": "absent"}, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected removal to report changed")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected %s to be removed", path)
	}

	res, _, err = m.Exec(config.GlobalParams{}, map[string]interface{}{"path": path, "state": "absent"}, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("second exec: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected removing an already-absent path to be a no-op")
	}
}

func TestCopyContentIdempotentOnMatchingChecksum(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.txt")
	params := map[string]interface{}{"content": "hello world", "dest": dest}

	m := &CopyModule{}

	res, _, err := m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("first copy: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected first write to report changed")
	}

	res, _, err = m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), false)
	if err != nil {
		t.Fatalf("second copy: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected identical content to be a no-op")
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("dest content = %q", got)
	}
}

func TestCopyCheckModeReportsChangeWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.txt")
	params := map[string]interface{}{"content": "hello", "dest": dest}

	m := &CopyModule{}
	res, _, err := m.Exec(config.GlobalParams{}, params, vars.NewRoot(nil), true)
	if err != nil {
		t.Fatalf("check-mode exec: %v", err)
	}
	if !res.Changed {
		t.Fatalf("expected check mode to predict a change")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("check mode must not write %s", dest)
	}
}

func TestCopyRejectsBothSrcAndContent(t *testing.T) {
	m := &CopyModule{}
	_, _, err := m.Exec(config.GlobalParams{}, map[string]interface{}{
		"src": "a", "content": "b", "dest": "/tmp/whatever",
	}, vars.NewRoot(nil), false)
	if err == nil {
		t.Fatalf("expected an error when both src and content are set")
	}
}
