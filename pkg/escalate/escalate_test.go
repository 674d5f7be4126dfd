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

package escalate

import (
	"strings"
	"testing"

	"github.com/work-obs/rash-go/pkg/rerr"
)

func TestWrapSudo(t *testing.T) {
	cmd, err := Wrap(Sudo, "apt-get update", Options{User: "root"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(cmd, "sudo -u root") || !strings.Contains(cmd, "apt-get update") {
		t.Errorf("unexpected sudo wrap: %s", cmd)
	}
}

func TestWrapSu_DefaultsToRoot(t *testing.T) {
	cmd, err := Wrap(Su, "whoami", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(cmd, "su root -c whoami") {
		t.Errorf("unexpected su wrap: %s", cmd)
	}
}

func TestWrapDoas(t *testing.T) {
	cmd, err := Wrap(Doas, "ls", Options{User: "build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(cmd, "doas -u build") {
		t.Errorf("unexpected doas wrap: %s", cmd)
	}
}

func TestWrap_UnknownMethod(t *testing.T) {
	_, err := Wrap(Method("pbrun"), "ls", Options{})
	if !rerr.Is(err, rerr.InvalidData) {
		t.Fatalf("expected InvalidData error, got %v", err)
	}
}
