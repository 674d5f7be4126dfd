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

// Package rerr defines the closed error-kind taxonomy shared across the
// engine: parsing, templating, module dispatch, and the execution loop all
// report failures through this type so the CLI can map them to stable exit
// codes instead of inspecting error strings.
package rerr

import (
	"errors"
	"fmt"
)

// Kind is a closed set of failure categories. Do not add values without
// also extending the exit-code table in cmd/rash.
type Kind int

const (
	Other Kind = iota
	GracefulExit
	NotFound
	InvalidData
	IOError
	OmitParam
	SubprocessFail
	EmptyTaskStack
	JinjaRenderError
)

func (k Kind) String() string {
	switch k {
	case GracefulExit:
		return "graceful exit"
	case NotFound:
		return "not found"
	case InvalidData:
		return "invalid data"
	case IOError:
		return "I/O error"
	case OmitParam:
		return "omit parameter"
	case SubprocessFail:
		return "subprocess failed"
	case EmptyTaskStack:
		return "empty task stack"
	case JinjaRenderError:
		return "template render error"
	default:
		return "error"
	}
}

// Error is the engine's single error type. It always carries a Kind; it
// optionally wraps a cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error

	// RawOSCode carries a process exit code through an Other error so
	// cmd/rash can propagate a wrapped command's own exit status instead of
	// collapsing it to the generic failure code.
	RawOSCode *int
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// NewOSExit builds an Other error carrying code as its RawOSCode, for a
// script whose terminal action should propagate a specific process exit
// status.
func NewOSExit(code int, msg string) *Error {
	return &Error{Kind: Other, Msg: msg, RawOSCode: &code}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Cause.Error())
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an *Error of the given kind, looking through
// any wrapped cause chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Other for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}
