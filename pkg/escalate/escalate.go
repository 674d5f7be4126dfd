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

// Package escalate wraps a command in a privilege-escalation invocation
// (sudo/su/doas) for the command/shell builtin modules to run when
// config.GlobalParams.Become is set. Become is a property of how
// `command`/`shell` build their exec.Cmd, not an extension point, so this
// is a function-per-method table rather than a plugin hierarchy.
package escalate

import (
	"strings"

	"github.com/work-obs/rash-go/pkg/rerr"
)

// Method is one of the supported privilege-escalation command builders.
type Method string

const (
	Sudo Method = "sudo"
	Su   Method = "su"
	Doas Method = "doas"
)

// Options configures how the escalation command is built.
type Options struct {
	User  string
	Flags string
}

// Wrap returns the shell-quoted command line that runs command as the
// target user via method, or an error if method is not one of the
// supported builders.
func Wrap(method Method, command string, opts Options) (string, error) {
	if command == "" || strings.ContainsAny(command, " \t\n\"'\\$`|&;<>()[]{}*?~#!") {
		command = "'" + strings.ReplaceAll(command, "'", `'\''`) + "'"
	}
	switch method {
	case Sudo, "":
		return wrapSudo(command, opts), nil
	case Su:
		return wrapSu(command, opts), nil
	case Doas:
		return wrapDoas(command, opts), nil
	default:
		return "", rerr.Newf(rerr.InvalidData, "unsupported become method: %s", method)
	}
}

func wrapSudo(command string, opts Options) string {
	parts := []string{"sudo"}
	if opts.User != "" {
		parts = append(parts, "-u", opts.User)
	}
	if opts.Flags != "" {
		parts = append(parts, strings.Fields(opts.Flags)...)
	}
	parts = append(parts, "-n", "/bin/sh", "-c", command)
	return strings.Join(parts, " ")
}

func wrapSu(command string, opts Options) string {
	parts := []string{"su"}
	user := opts.User
	if user == "" {
		user = "root"
	}
	parts = append(parts, user)
	if opts.Flags != "" {
		parts = append(parts, strings.Fields(opts.Flags)...)
	} else {
		parts = append(parts, "-c")
	}
	parts = append(parts, command)
	return strings.Join(parts, " ")
}

func wrapDoas(command string, opts Options) string {
	parts := []string{"doas"}
	if opts.User != "" {
		parts = append(parts, "-u", opts.User)
	}
	if opts.Flags != "" {
		parts = append(parts, strings.Fields(opts.Flags)...)
	}
	parts = append(parts, "/bin/sh", "-c", command)
	return strings.Join(parts, " ")
}
