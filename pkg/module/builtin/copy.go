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

// copy writes a source file or inline content to a destination, first
// comparing sha1 checksums (src) or the existing bytes (content) so an
// identical destination is a no-op. A dest that is a directory receives the
// source's basename.
package builtin

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&CopyModule{})
}

type CopyModule struct{}

func (m *CopyModule) Name() string             { return "copy" }
func (m *CopyModule) ForceStringOnParams() bool { return false }

func (m *CopyModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}
	if err := validateRequired(args, "dest"); err != nil {
		return module.Result{}, nil, err
	}

	src := argString(args, "src", "")
	content := argString(args, "content", "")
	dest := argString(args, "dest", "")
	mode := argString(args, "mode", "")
	force := argBool(args, "force", true)

	if src == "" && content == "" {
		return module.Result{}, nil, rerr.New(rerr.InvalidData, "either src or content is required")
	}
	if src != "" && content != "" {
		return module.Result{}, nil, rerr.New(rerr.InvalidData, "src and content are mutually exclusive")
	}

	if destInfo, err := os.Stat(dest); err == nil && destInfo.IsDir() {
		if src == "" {
			return module.Result{}, nil, rerr.New(rerr.InvalidData, "dest is a directory but content was provided")
		}
		dest = filepath.Join(dest, filepath.Base(src))
	}

	needsCopy := true
	if _, err := os.Stat(dest); err == nil {
		if !force {
			return module.Result{Changed: false, Extra: map[string]interface{}{"dest": dest}}, nil, nil
		}
		same, err := destMatches(src, content, dest)
		if err != nil {
			return module.Result{}, nil, err
		}
		needsCopy = !same
	}

	if checkMode {
		return module.Result{Changed: needsCopy}, nil, nil
	}

	if needsCopy {
		var copyErr error
		if src != "" {
			copyErr = copyFile(src, dest)
		} else {
			copyErr = os.WriteFile(dest, []byte(content), 0644)
		}
		if copyErr != nil {
			return module.Result{}, nil, rerr.Wrapf(rerr.IOError, copyErr, "copying to %s", dest)
		}
	}

	changed := needsCopy
	if mode != "" {
		fileMode, err := parseMode(mode)
		if err != nil {
			return module.Result{}, nil, rerr.Wrapf(rerr.InvalidData, err, "invalid mode %s", mode)
		}
		if err := os.Chmod(dest, fileMode); err != nil {
			return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "setting mode on %s", dest)
		}
	}

	extra := map[string]interface{}{"dest": dest}
	if checksum, err := fileChecksum(dest); err == nil {
		extra["checksum"] = checksum
	}

	return module.Result{Changed: changed, Extra: extra}, nil, nil
}

func destMatches(src, content, dest string) (bool, error) {
	if src != "" {
		srcSum, err := fileChecksum(src)
		if err != nil {
			return false, rerr.Wrapf(rerr.IOError, err, "checksumming %s", src)
		}
		destSum, err := fileChecksum(dest)
		if err != nil {
			return false, rerr.Wrapf(rerr.IOError, err, "checksumming %s", dest)
		}
		return srcSum == destSum, nil
	}
	existing, err := os.ReadFile(dest)
	if err != nil {
		return false, rerr.Wrapf(rerr.IOError, err, "reading %s", dest)
	}
	return string(existing) == content, nil
}

func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}
	return destFile.Chmod(srcInfo.Mode())
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
