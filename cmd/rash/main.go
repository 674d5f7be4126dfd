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

// cmd/rash is the single-binary script runner: it reads a task script,
// seeds the variable context, and drives pkg/engine to completion. Script
// arguments are injected as a plain list under rash.args; there is no
// usage-grammar parsing in this entry point.
package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/display"
	"github.com/work-obs/rash-go/pkg/dynamic"
	"github.com/work-obs/rash-go/pkg/engine"
	"github.com/work-obs/rash-go/pkg/jinja"
	"github.com/work-obs/rash-go/pkg/module/builtin"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/task"
	"github.com/work-obs/rash-go/pkg/vars"
)

const version = "0.1.0"

var (
	cfgFile    string
	verbose    int
	extraVars  map[string]string
	become     bool
	becomeUser string
	checkMode  bool
	showDiff   bool
	modulePath []string
)

var rootCmd = &cobra.Command{
	Use:     "rash <script.rh>",
	Short:   "rash - run a declarative task script against the local host",
	Version: version,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runScript,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is rash.yml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "verbose mode (-v, -vv, -vvv)")
	rootCmd.PersistentFlags().StringToStringVarP(&extraVars, "extra-vars", "e", nil, "set additional variables as key=value")
	rootCmd.PersistentFlags().BoolVarP(&become, "become", "b", false, "run operations with become")
	rootCmd.PersistentFlags().StringVar(&becomeUser, "become-user", "", "run operations as this user")
	rootCmd.PersistentFlags().BoolVarP(&checkMode, "check", "C", false, "don't make any changes")
	rootCmd.PersistentFlags().BoolVarP(&showDiff, "diff", "D", false, "show changed/added/removed item detail")
	rootCmd.PersistentFlags().StringSliceVar(&modulePath, "module-path", nil, "additional dynamic-module search directories")
}

// exitCode derives the process exit status from the root error:
// GracefulExit and a plain successful return are 0, an Other error with
// RawOSCode propagates that code, everything else is 1.
func exitCode(err error) int {
	if rerr.Is(err, rerr.GracefulExit) {
		return 0
	}
	if re, ok := err.(*rerr.Error); ok && re.RawOSCode != nil {
		return *re.RawOSCode
	}
	return 1
}

func runScript(cmd *cobra.Command, args []string) error {
	scriptPath := args[0]
	scriptArgs := args[1:]

	fs := afero.NewOsFs()
	cfgManager := config.NewManager(fs)
	if cfgFile != "" {
		data, err := afero.ReadFile(fs, cfgFile)
		if err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
		format := cfgFile[strings.LastIndex(cfgFile, ".")+1:]
		if err := cfgManager.LoadConfigFromData(data, format); err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
	} else if err := cfgManager.LoadConfig(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg := cfgManager.GetConfig()

	global := cfgManager.Global(checkModeOverride())
	if become {
		global.Become = true
	}
	if becomeUser != "" {
		global.BecomeUser = becomeUser
	}

	disp := display.New(os.Stdout, verbose)
	if showDiff {
		disp.EnableDiff(os.Stderr)
	}

	body, err := afero.ReadFile(fs, scriptPath)
	if err != nil {
		return fmt.Errorf("reading script %s: %w", scriptPath, err)
	}

	tasks, err := task.Parse(body)
	if err != nil {
		return err
	}

	root := vars.NewRoot(seedContext(scriptPath, scriptArgs, extraVars))

	searchPath := append([]string{}, cfg.ModuleSearchPath...)
	searchPath = append(searchPath, modulePath...)
	loader := dynamic.NewLoader(fs, searchPath, builtin.Registry, disp)
	builtin.Registry.SetDynamicResolver(loader)

	_, _, err = engine.Run(tasks, root, global, builtin.Registry, disp, nil)
	if err != nil {
		if rerr.Is(err, rerr.GracefulExit) || rerr.Is(err, rerr.EmptyTaskStack) {
			return nil
		}
		printCauseChain(err)
		return err
	}
	return nil
}

func checkModeOverride() *bool {
	if !rootCmd.PersistentFlags().Changed("check") {
		return nil
	}
	v := checkMode
	return &v
}

// seedContext builds the initial variable mapping: rash.args/path/user/
// host/env (the rash builtin handle) and env (inherited process environment
// plus any -e KEY=VAL switches).
func seedContext(scriptPath string, scriptArgs []string, extra map[string]string) map[string]interface{} {
	argList := make([]interface{}, len(scriptArgs))
	for i, a := range scriptArgs {
		argList[i] = a
	}

	absPath := scriptPath
	if abs, err := absPathOf(scriptPath); err == nil {
		absPath = abs
	}

	hostname, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	envMap := map[string]interface{}{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	for k, v := range extra {
		envMap[k] = v
	}

	return map[string]interface{}{
		"rash": map[string]interface{}{
			"args": argList,
			"path": absPath,
			"user": username,
			"host": hostname,
			"env":  envMap,
		},
		"env":   envMap,
		"omit":  jinja.OmitSentinel,
	}
}

func absPathOf(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + "/" + p, nil
}

// printCauseChain prints a task-engine error and its full wrapped-cause
// chain to stderr.
func printCauseChain(err error) {
	fmt.Fprintln(os.Stderr, "rash: execution failed")
	for cur := err; cur != nil; {
		fmt.Fprintf(os.Stderr, "  caused by: %s\n", cur.Error())
		unwrapper, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := unwrapper.Unwrap()
		if next == nil || next == cur {
			break
		}
		cur = next
	}
}
