package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Init creates a new repository at path: .ckusro/ with objects/, a default
// config.toml and an empty namespace table. Returns an error if a
// .ckusro/ directory already exists.
func Init(path string, opts ...Option) (*Repo, error) {
	o := newOptions(opts)
	dir := filepath.Join(path, DirName)

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	cfg := DefaultConfig()
	if err := writeConfig(dir, cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := writeNamespaceTable(dir, &namespaceTable{}); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r := newRepo(path, dir, cfg, o)
	r.logger.Debug("initialized repository", zap.String("dir", dir))
	return r, nil
}

// Open searches upward from path for a .ckusro/ directory and opens the
// repository. Returns an error if no .ckusro/ directory is found.
func Open(path string, opts ...Option) (*Repo, error) {
	o := newOptions(opts)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			cfg, err := readConfig(dir)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return newRepo(cur, dir, cfg, o), nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a ckusro repository (or any parent up to /)")
		}
		cur = parent
	}
}
