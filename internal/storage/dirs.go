package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureDirectories creates every directory in dirs, including parents.
// Existing directories are left untouched, so repeated calls are no-ops.
func EnsureDirectories(dirs []string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storageErr("create directory", dir, err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return storageErr("stat directory", dir, err)
		}
		if !info.IsDir() {
			return storageErr("create directory", dir, fmt.Errorf("path exists and is not a directory"))
		}
	}
	return nil
}

// CleanupResult summarises one retention sweep.
type CleanupResult struct {
	Removed []string
	Failed  map[string]error
}

// Cleanup removes regular files in dir whose modification time is older than
// retention. Flag files and temporary flag writes are never removed. A zero
// retention disables the sweep.
func Cleanup(dir string, retention time.Duration, now time.Time) (CleanupResult, error) {
	result := CleanupResult{Failed: make(map[string]error)}
	if retention <= 0 {
		return result, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return result, storageErr("read directory", dir, err)
	}

	cutoff := now.Add(-retention)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isFlagFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			result.Failed[path] = err
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	return result, nil
}

func isFlagFile(name string) bool {
	return strings.HasSuffix(name, ".flag") ||
		strings.HasSuffix(name, ".flag.json") ||
		strings.Contains(name, ".flag.tmp-") ||
		strings.Contains(name, ".flag.json.tmp-")
}
