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

// service manages systemd units: started/stopped/restarted/reloaded plus
// enabled/disabled. systemctl is the only supported backend; hosts without
// it get a clear NotFound error.
package builtin

import (
	"context"
	"os/exec"
	"time"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&ServiceModule{})
}

type ServiceModule struct{}

func (m *ServiceModule) Name() string             { return "service" }
func (m *ServiceModule) ForceStringOnParams() bool { return false }

func (m *ServiceModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}
	if err := validateRequired(args, "name"); err != nil {
		return module.Result{}, nil, err
	}
	if err := validateChoice(args, "state", "started", "stopped", "restarted", "reloaded"); err != nil {
		return module.Result{}, nil, err
	}

	name := argString(args, "name", "")
	state := argString(args, "state", "")
	enabledRaw, enabledSet := args["enabled"]

	if _, err := exec.LookPath("systemctl"); err != nil {
		return module.Result{}, nil, rerr.New(rerr.NotFound, "systemctl not found; this engine's service module targets systemd")
	}

	running, err := unitActive(name)
	if err != nil {
		return module.Result{}, nil, err
	}

	if checkMode {
		return module.Result{Changed: serviceWouldChange(state, enabledRaw, enabledSet, running)}, nil, nil
	}

	changed := false
	if state != "" {
		didChange, err := applyServiceState(name, state, running)
		if err != nil {
			return module.Result{}, nil, err
		}
		changed = changed || didChange
	}
	if enabledSet {
		didChange, err := applyServiceEnabled(name, enabledRaw)
		if err != nil {
			return module.Result{}, nil, err
		}
		changed = changed || didChange
	}

	return module.Result{Changed: changed, Extra: map[string]interface{}{"name": name, "state": state}}, nil, nil
}

func serviceWouldChange(state string, enabledRaw interface{}, enabledSet, running bool) bool {
	switch state {
	case "started":
		if !running {
			return true
		}
	case "stopped":
		if running {
			return true
		}
	case "restarted", "reloaded":
		return true
	}
	if enabledSet {
		if b, ok := enabledRaw.(bool); ok {
			return b // check mode does not query is-enabled: enabled=true predicts a change, enabled=false does not
		}
	}
	return false
}

func unitActive(name string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", name).Run()
	return err == nil, nil
}

func applyServiceState(name, state string, running bool) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch state {
	case "started":
		if running {
			return false, nil
		}
		return true, runSystemctl(ctx, "start", name)
	case "stopped":
		if !running {
			return false, nil
		}
		return true, runSystemctl(ctx, "stop", name)
	case "restarted":
		return true, runSystemctl(ctx, "restart", name)
	case "reloaded":
		return true, runSystemctl(ctx, "reload", name)
	}
	return false, nil
}

func applyServiceEnabled(name string, enabledRaw interface{}) (bool, error) {
	enabled, ok := enabledRaw.(bool)
	if !ok {
		return false, rerr.Newf(rerr.InvalidData, "'enabled' must be a boolean, got %T", enabledRaw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	isEnabled := exec.CommandContext(ctx, "systemctl", "is-enabled", "--quiet", name).Run() == nil
	if enabled == isEnabled {
		return false, nil
	}
	if enabled {
		return true, runSystemctl(ctx, "enable", name)
	}
	return true, runSystemctl(ctx, "disable", name)
}

func runSystemctl(ctx context.Context, args ...string) error {
	if err := exec.CommandContext(ctx, "systemctl", args...).Run(); err != nil {
		return rerr.Wrapf(rerr.SubprocessFail, err, "systemctl %v", args)
	}
	return nil
}
