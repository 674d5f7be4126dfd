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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestNewManager(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs)

	if manager == nil {
		t.Fatal("Expected non-nil manager")
	}

	if manager.fs != fs {
		t.Error("Expected filesystem to be set correctly")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs)

	if err := manager.LoadConfig(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg := manager.GetConfig()

	if cfg.BecomeMethod != "sudo" {
		t.Errorf("Expected become method 'sudo', got '%s'", cfg.BecomeMethod)
	}
	if cfg.BecomeUser != "root" {
		t.Errorf("Expected become user 'root', got '%s'", cfg.BecomeUser)
	}
	if cfg.CheckMode {
		t.Error("Expected check_mode default false")
	}
	if cfg.Become {
		t.Error("Expected become default false")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	fs := afero.NewMemMapFs()

	yamlConfig := `
become: true
become_method: su
become_user: deploy
check_mode: true
verbosity: 2
`
	manager := NewManager(fs)
	if err := manager.LoadConfigFromData([]byte(yamlConfig), "yaml"); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg := manager.GetConfig()

	if !cfg.Become {
		t.Error("Expected become to be true")
	}
	if cfg.BecomeMethod != "su" {
		t.Errorf("Expected become method 'su', got '%s'", cfg.BecomeMethod)
	}
	if cfg.BecomeUser != "deploy" {
		t.Errorf("Expected become user 'deploy', got '%s'", cfg.BecomeUser)
	}
	if !cfg.CheckMode {
		t.Error("Expected check_mode to be true")
	}
	if cfg.Verbosity != 2 {
		t.Errorf("Expected verbosity 2, got %d", cfg.Verbosity)
	}
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs)

	os.Setenv("RASH_BECOME_USER", "envuser")
	defer os.Unsetenv("RASH_BECOME_USER")

	if err := manager.LoadConfig(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg := manager.GetConfig()
	if cfg.BecomeUser != "envuser" {
		t.Errorf("Expected become user 'envuser', got '%s'", cfg.BecomeUser)
	}
}

func TestGlobal_CheckModeOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs)
	if err := manager.LoadConfig(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	g := manager.Global(nil)
	if g.CheckMode {
		t.Error("expected default check mode false")
	}

	on := true
	g = manager.Global(&on)
	if !g.CheckMode {
		t.Error("expected override to force check mode true")
	}
}

func TestExpandPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty path", input: "", expected: ""},
		{name: "absolute path", input: "/etc/rash/modules", expected: "/etc/rash/modules"},
		{name: "relative path", input: "modules", expected: "modules"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandPath(tt.input)
			if result != tt.expected {
				t.Errorf("expandPath(%s) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExpandPath_HomeDirectory(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}

	result := expandPath("~/.rash/modules")
	expected := filepath.Join(home, ".rash/modules")

	if result != expected {
		t.Errorf("expandPath('~/.rash/modules') = %s, want %s", result, expected)
	}
}

func TestExpandPaths(t *testing.T) {
	input := []string{"/etc/rash/modules", "~/.rash/modules", "modules"}
	result := expandPaths(input)

	if len(result) != len(input) {
		t.Errorf("Expected %d paths, got %d", len(input), len(result))
	}
	if result[0] != "/etc/rash/modules" {
		t.Errorf("Expected first path '/etc/rash/modules', got '%s'", result[0])
	}
	if result[2] != "modules" {
		t.Errorf("Expected third path 'modules', got '%s'", result[2])
	}
}

func TestIsConfigNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		error    string
		expected bool
	}{
		{name: "not found error", error: `Config File "rash" Not Found`, expected: true},
		{name: "no such file error", error: "open rash.yaml: no such file or directory", expected: true},
		{name: "other error", error: "permission denied", expected: false},
		{name: "empty error", error: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("%s", tt.error)
			result := isConfigNotFoundError(err)
			if result != tt.expected {
				t.Errorf("isConfigNotFoundError(%s) = %v, want %v", tt.error, result, tt.expected)
			}
		})
	}
}

func TestGetValue_SetValue(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs)

	if err := manager.LoadConfig(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	key := "test_key"
	value := "test_value"

	manager.SetValue(key, value)
	result := manager.GetValue(key)

	if result != value {
		t.Errorf("Expected value '%s', got '%v'", value, result)
	}
}
