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

import "github.com/work-obs/rash-go/pkg/module"

// Registry is the process-wide static module registry. Each builtin module
// file in this package registers itself from an init(); cmd/rash imports
// this package for its side effects and wires Registry into pkg/dynamic as
// the name-collision guard (pkg/module.Registry.IsStatic).
var Registry = module.NewRegistry()
