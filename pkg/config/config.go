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

// Package config loads the engine's run-wide configuration: privilege
// escalation defaults, check-mode, the dynamic-module search path, and
// verbosity. Configuration is resolved with viper over an afero filesystem
// so tests can substitute an in-memory fs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// GlobalParams is the run-wide, per-invocation set: escalation flag,
// escalation target user, check-mode flag. It is threaded unchanged through
// every task dispatch (pkg/module.Module.Exec); a task's own
// `become`/`become_user`/`check_mode` modifiers override it per task.
type GlobalParams struct {
	Become    bool
	BecomeUser string
	CheckMode bool
}

// Config is the engine's run-wide configuration.
type Config struct {
	Become           bool     `mapstructure:"become"`
	BecomeMethod     string   `mapstructure:"become_method"`
	BecomeUser       string   `mapstructure:"become_user"`
	CheckMode        bool     `mapstructure:"check_mode"`
	ModuleSearchPath []string `mapstructure:"module_search_path"`
	Verbosity        int      `mapstructure:"verbosity"`

	fs afero.Fs
}

// Manager loads Config from defaults, an optional rash.yml (or .yaml/.json/
// .toml) file, and RASH_-prefixed environment variables, in that order of
// increasing precedence.
type Manager struct {
	config *Config
	viper  *viper.Viper
	fs     afero.Fs
}

// NewManager creates a new configuration manager backed by fs (swap in
// afero.NewMemMapFs() in tests).
func NewManager(fs afero.Fs) *Manager {
	v := viper.New()
	v.SetFs(fs)

	return &Manager{
		config: &Config{fs: fs},
		viper:  v,
		fs:     fs,
	}
}

// LoadConfig loads configuration from multiple sources with proper
// precedence: defaults, then the first readable rash config file on the
// search path, then RASH_-prefixed environment variables.
func (m *Manager) LoadConfig() error {
	m.setDefaults()

	m.viper.SetConfigName("rash")
	m.viper.SetConfigType("yaml")
	m.addConfigPaths()

	m.viper.SetEnvPrefix("RASH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := m.readConfigFile(); err != nil {
		if !isConfigNotFoundError(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.processConfig()
	return nil
}

// setDefaults sets the engine's built-in defaults.
func (m *Manager) setDefaults() {
	m.viper.SetDefault("become", false)
	m.viper.SetDefault("become_method", "sudo")
	m.viper.SetDefault("become_user", "root")
	m.viper.SetDefault("check_mode", false)
	m.viper.SetDefault("module_search_path", []string{"~/.rash/modules", "/etc/rash/modules"})
	m.viper.SetDefault("verbosity", 0)
}

// addConfigPaths adds configuration file search paths. viper uses the first
// directory in this list that holds a rash config file, so /etc/rash takes
// precedence over ~/.rash, which takes precedence over the current
// directory.
func (m *Manager) addConfigPaths() {
	m.viper.AddConfigPath("/etc/rash")

	if home, err := os.UserHomeDir(); err == nil {
		m.viper.AddConfigPath(filepath.Join(home, ".rash"))
	}

	m.viper.AddConfigPath(".")
}

// readConfigFile attempts to read a rash config file in any of the
// supported formats.
func (m *Manager) readConfigFile() error {
	formats := []string{"yaml", "yml", "json", "toml"}
	var lastErr error

	for _, format := range formats {
		m.viper.SetConfigType(format)
		if err := m.viper.ReadInConfig(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no configuration file found")
}

// processConfig expands ~ and env vars in path-shaped fields.
func (m *Manager) processConfig() {
	m.config.ModuleSearchPath = expandPaths(m.config.ModuleSearchPath)
}

// GetConfig returns the loaded configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Global derives the run-wide GlobalParams from the loaded Config,
// applying any CLI overrides (e.g. `--check`) the caller has already folded
// into checkModeOverride.
func (m *Manager) Global(checkModeOverride *bool) GlobalParams {
	g := GlobalParams{
		Become:     m.config.Become,
		BecomeUser: m.config.BecomeUser,
		CheckMode:  m.config.CheckMode,
	}
	if checkModeOverride != nil {
		g.CheckMode = *checkModeOverride
	}
	return g
}

// GetValue returns a configuration value by key.
func (m *Manager) GetValue(key string) interface{} {
	return m.viper.Get(key)
}

// SetValue sets a configuration value, overriding whatever file/env/default
// supplied it.
func (m *Manager) SetValue(key string, value interface{}) {
	m.viper.Set(key, value)
}

// LoadConfigFromData loads configuration directly from in-memory data (used
// by tests and by cmd/rash for an explicit --config file).
func (m *Manager) LoadConfigFromData(data []byte, format string) error {
	m.setDefaults()

	m.viper.SetEnvPrefix("RASH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	m.viper.SetConfigType(format)
	if err := m.viper.ReadConfig(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("error reading config from data: %w", err)
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.processConfig()
	return nil
}

// expandPath expands ~ and environment variables in a path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// expandPaths expands a list of paths.
func expandPaths(paths []string) []string {
	expanded := make([]string, len(paths))
	for i, path := range paths {
		expanded[i] = expandPath(path)
	}
	return expanded
}

// isConfigNotFoundError reports whether err indicates a missing config
// file rather than a real read failure.
func isConfigNotFoundError(err error) bool {
	return strings.Contains(err.Error(), "Not Found") ||
		strings.Contains(err.Error(), "no such file")
}
