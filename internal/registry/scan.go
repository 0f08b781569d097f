package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"orchd/pkg/types"
)

// ScanDir builds in-process descriptors from *.gguf files in a directory,
// supplementing the static catalog. The filename (without extension) is the
// id; memory cost is estimated from file size.
func ScanDir(dir string) ([]types.Model, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		id := strings.TrimSuffix(name, filepath.Ext(name))
		models = append(models, types.Model{
			ID:        id,
			Name:      name,
			Serving:   types.ServingInProcess,
			Path:      p,
			EstVRAMMB: estimateFileMB(p),
		})
	}
	return models, nil
}

// estimateFileMB returns the file size in MB, minimum 1 so an unknown size
// never bypasses budget checks.
func estimateFileMB(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
