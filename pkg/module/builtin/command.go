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

// command and shell run a subprocess and await it to completion. command
// executes the program directly and rejects shell metacharacters; shell
// hands the line to /bin/sh. Both honor creates/removes skip-guards, a
// per-task timeout, and privilege escalation via pkg/escalate when the
// task's effective become is set.
package builtin

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/escalate"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&CommandModule{})
	Registry.Register(&ShellModule{shell: true})
}

// CommandModule executes a single program directly, without a shell.
type CommandModule struct{}

func (m *CommandModule) Name() string             { return "command" }
func (m *CommandModule) ForceStringOnParams() bool { return true }
func (m *CommandModule) RawStringParam() bool      { return true }

func (m *CommandModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	return runCommand(global, rawParams, checkMode, false)
}

// ShellModule executes its command through /bin/sh (or cmd /C on Windows),
// permitting shell features (pipes, redirection, globbing) that `command`
// rejects.
type ShellModule struct{ shell bool }

func (m *ShellModule) Name() string             { return "shell" }
func (m *ShellModule) ForceStringOnParams() bool { return true }
func (m *ShellModule) RawStringParam() bool      { return true }

func (m *ShellModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	return runCommand(global, rawParams, checkMode, true)
}

var unsafeShellChars = []string{"|", ";", "&", "$", "`", "<", ">", "(", ")", "{", "}", "*", "?"}

func runCommand(global config.GlobalParams, rawParams interface{}, checkMode, shell bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}

	cmdStr := argString(args, "_raw_params", "")
	if cmdStr == "" {
		cmdStr = argString(args, "_", "")
	}
	if cmdStr == "" {
		return module.Result{}, nil, rerr.New(rerr.InvalidData, "no command specified")
	}

	if !shell && argBool(args, "warn", true) {
		for _, c := range unsafeShellChars {
			if strings.Contains(cmdStr, c) {
				return module.Result{}, nil, rerr.Newf(rerr.InvalidData,
					"command contains shell metacharacter '%s'; use the shell module instead: %s", c, cmdStr)
			}
		}
	}

	chdir := argString(args, "chdir", "")
	creates := argString(args, "creates", "")
	removes := argString(args, "removes", "")
	timeout := argInt(args, "timeout", 30)

	if creates != "" {
		if _, err := os.Stat(creates); err == nil {
			return module.Result{Changed: false, Output: "skipped, since " + creates + " exists"}, nil, nil
		}
	}
	if removes != "" {
		if _, err := os.Stat(removes); os.IsNotExist(err) {
			return module.Result{Changed: false, Output: "skipped, since " + removes + " does not exist"}, nil, nil
		}
	}

	if global.Become {
		wrapped, err := escalate.Wrap(escalate.Method(escalateMethodFromGlobal(global)), cmdStr, escalate.Options{User: global.BecomeUser})
		if err != nil {
			return module.Result{}, nil, err
		}
		cmdStr = wrapped
		shell = true
	}

	if checkMode {
		return module.Result{Changed: true, Output: "would run: " + cmdStr}, nil, nil
	}

	ctx := context.Background()
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	}
	defer cancel()

	var cmd *exec.Cmd
	if shell {
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd", "/C", cmdStr)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
		}
	} else {
		parts := strings.Fields(cmdStr)
		cmd = exec.CommandContext(ctx, parts[0], parts[1:]...)
	}
	if chdir != "" {
		cmd.Dir = chdir
	}

	out, runErr := cmd.CombinedOutput()
	output := string(out)

	rc := -1
	if cmd.ProcessState != nil {
		rc = cmd.ProcessState.ExitCode()
	}
	extra := map[string]interface{}{
		"cmd": cmdStr,
		"rc":  rc,
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return module.Result{}, nil, rerr.Newf(rerr.SubprocessFail, "command timed out after %ds: %s", timeout, cmdStr)
		}
		return module.Result{Failed: true, Output: output, Extra: extra}, nil,
			rerr.Wrapf(rerr.SubprocessFail, runErr, "command failed: %s", cmdStr)
	}

	return module.Result{Changed: true, Output: output, Extra: extra}, nil, nil
}

func escalateMethodFromGlobal(g config.GlobalParams) string {
	// GlobalParams carries only the become flag/user, not a method; sudo is
	// the engine-wide default become method (pkg/config's own default).
	return string(escalate.Sudo)
}
