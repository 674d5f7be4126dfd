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

// file manages path state: file/directory/link/hard/touch/absent, with an
// Lstat-based existence/kind check and octal mode parsing. Check mode
// reports the same `changed` verdict a real run would without touching the
// filesystem.
package builtin

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/work-obs/rash-go/pkg/config"
	"github.com/work-obs/rash-go/pkg/module"
	"github.com/work-obs/rash-go/pkg/rerr"
	"github.com/work-obs/rash-go/pkg/vars"
)

func init() {
	Registry.Register(&FileModule{})
}

type FileModule struct{}

func (m *FileModule) Name() string             { return "file" }
func (m *FileModule) ForceStringOnParams() bool { return false }

func (m *FileModule) Exec(global config.GlobalParams, rawParams interface{}, v *vars.Context, checkMode bool) (module.Result, map[string]interface{}, error) {
	args, err := asMap(rawParams)
	if err != nil {
		return module.Result{}, nil, err
	}
	if err := validateRequired(args, "path"); err != nil {
		return module.Result{}, nil, err
	}
	if err := validateChoice(args, "state", "file", "directory", "link", "hard", "touch", "absent"); err != nil {
		return module.Result{}, nil, err
	}

	path := argString(args, "path", "")
	state := argString(args, "state", "file")
	mode := argString(args, "mode", "")
	recurse := argBool(args, "recurse", false)
	force := argBool(args, "force", false)
	src := argString(args, "src", "")

	if (state == "link" || state == "hard") && src == "" {
		return module.Result{}, nil, rerr.New(rerr.InvalidData, "src is required for link/hard states")
	}

	info, exists := lstatInfo(path)

	if checkMode {
		res, delta, err := fileCheckModeResult(path, state, exists, info)
		if err == nil && state != "absent" && mode != "" {
			// a real run reports a change whenever mode is set (applyMode)
			res.Changed = true
		}
		return res, delta, err
	}

	changed := false
	switch state {
	case "absent":
		if exists {
			if err := removePath(path, info.isDir, recurse, force); err != nil {
				return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "removing %s", path)
			}
			changed = true
		}
	case "touch":
		if !exists {
			if err := touchFile(path); err != nil {
				return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "touching %s", path)
			}
			changed = true
		}
	case "file":
		if !exists {
			return module.Result{}, nil, rerr.Newf(rerr.NotFound, "file %s does not exist", path)
		}
		if info.isDir {
			return module.Result{}, nil, rerr.Newf(rerr.InvalidData, "%s is a directory, expected a file", path)
		}
	case "directory":
		if !exists {
			if err := createDirectory(path, recurse); err != nil {
				return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "creating directory %s", path)
			}
			changed = true
		} else if !info.isDir {
			return module.Result{}, nil, rerr.Newf(rerr.InvalidData, "%s exists but is not a directory", path)
		}
	case "link":
		if err := createSymlink(src, path, force); err != nil {
			return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "creating symlink %s", path)
		}
		changed = true
	case "hard":
		if err := createHardlink(src, path, force); err != nil {
			return module.Result{}, nil, rerr.Wrapf(rerr.IOError, err, "creating hardlink %s", path)
		}
		changed = true
	}

	if state != "absent" && mode != "" {
		if attrChanged, err := applyMode(path, mode, recurse); err != nil {
			return module.Result{}, nil, err
		} else if attrChanged {
			changed = true
		}
	}

	final, finalExists := lstatInfo(path)
	extra := map[string]interface{}{"path": path}
	if finalExists {
		extra["state"] = final.kind()
		extra["mode"] = final.modeOctal()
		extra["size"] = final.size
	} else {
		extra["state"] = "absent"
	}

	return module.Result{Changed: changed, Extra: extra}, nil, nil
}

func fileCheckModeResult(path, state string, exists bool, info pathInfo) (module.Result, map[string]interface{}, error) {
	switch state {
	case "absent":
		return module.Result{Changed: exists}, nil, nil
	case "touch":
		return module.Result{Changed: !exists}, nil, nil
	case "file":
		if !exists {
			return module.Result{}, nil, rerr.Newf(rerr.NotFound, "file %s does not exist", path)
		}
		return module.Result{Changed: false}, nil, nil
	case "directory":
		if !exists {
			return module.Result{Changed: true}, nil, nil
		}
		if !info.isDir {
			return module.Result{}, nil, rerr.Newf(rerr.InvalidData, "%s exists but is not a directory", path)
		}
		return module.Result{Changed: false}, nil, nil
	case "link", "hard":
		return module.Result{Changed: true}, nil, nil
	}
	return module.Result{Changed: false}, nil, nil
}

type pathInfo struct {
	isDir  bool
	isLink bool
	mode   os.FileMode
	size   int64
}

func (p pathInfo) kind() string {
	if p.isDir {
		return "directory"
	}
	if p.isLink {
		return "link"
	}
	return "file"
}

func (p pathInfo) modeOctal() string {
	return "0" + strconv.FormatInt(int64(p.mode.Perm()), 8)
}

func lstatInfo(path string) (pathInfo, bool) {
	stat, err := os.Lstat(path)
	if err != nil {
		return pathInfo{}, false
	}
	return pathInfo{
		isDir:  stat.IsDir(),
		isLink: stat.Mode()&os.ModeSymlink != 0,
		mode:   stat.Mode(),
		size:   stat.Size(),
	}, true
}

func removePath(path string, isDir, recurse, force bool) error {
	if isDir {
		if recurse || force {
			return os.RemoveAll(path)
		}
		return os.Remove(path)
	}
	return os.Remove(path)
}

func touchFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func createDirectory(path string, recurse bool) error {
	if recurse {
		return os.MkdirAll(path, 0755)
	}
	return os.Mkdir(path, 0755)
}

func createSymlink(src, dst string, force bool) error {
	if _, err := os.Lstat(dst); err == nil {
		if !force {
			return rerr.New(rerr.InvalidData, "destination already exists and force=false")
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	return os.Symlink(src, dst)
}

func createHardlink(src, dst string, force bool) error {
	if _, err := os.Stat(dst); err == nil {
		if !force {
			return rerr.New(rerr.InvalidData, "destination already exists and force=false")
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	return os.Link(src, dst)
}

func applyMode(path, mode string, recurse bool) (bool, error) {
	fileMode, err := parseMode(mode)
	if err != nil {
		return false, rerr.Wrapf(rerr.InvalidData, err, "invalid mode %s", mode)
	}
	if recurse {
		err = filepath.Walk(path, func(walkPath string, _ os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			return os.Chmod(walkPath, fileMode)
		})
	} else {
		err = os.Chmod(path, fileMode)
	}
	if err != nil {
		return false, rerr.Wrapf(rerr.IOError, err, "setting mode on %s", path)
	}
	return true, nil
}

func parseMode(mode string) (os.FileMode, error) {
	m := strings.TrimPrefix(mode, "0")
	modeInt, err := strconv.ParseInt(m, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(modeInt), nil
}
