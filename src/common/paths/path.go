// Package paths provides path helpers shared by buildimage packages.
package paths

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand expands environment variables and a leading ~ in path
func Expand(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			return filepath.Join(usr.HomeDir, path[2:])
		}
	} else if path == "~" {
		if usr, err := user.Current(); err == nil {
			return usr.HomeDir
		}
	}

	return path
}

// Resolve expands path and makes it absolute. An empty path resolves to the
// current working directory.
func Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(Expand(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

// EnsureDir ensures that the parent directory of the given file path exists.
func EnsureDir(path string) error {
	return EnsureDirPath(filepath.Dir(path))
}

// EnsureDirPath creates dirPath and any missing parents. An existing
// directory is not an error; an existing non-directory is.
func EnsureDirPath(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		if IsDir(dirPath) {
			return nil
		}
		return err
	}
	return nil
}

// Exists returns true if the path exists
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir returns true if the path exists and is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsFile returns true if the path exists and is a regular file
func IsFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
