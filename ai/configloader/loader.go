// Package configloader reads YAML configuration (agent personas, task templates)
// from an override directory with an embedded fallback.
package configloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader is a unified configuration loader for AI-related YAML files.
type Loader struct {
	baseDir  string
	fallback fs.FS
	cache    sync.Map
}

// NewLoader creates a new configuration loader. Files are looked up in
// baseDir first (when non-empty) and then in fallback (when non-nil).
func NewLoader(baseDir string, fallback fs.FS) *Loader {
	return &Loader{
		baseDir:  baseDir,
		fallback: fallback,
	}
}

// Load loads a single YAML file and unmarshals it into target.
func (l *Loader) Load(subPath string, target any) error {
	data, err := l.ReadFile(subPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", subPath, err)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal YAML %s: %w", subPath, err)
	}

	return nil
}

// LoadCached loads a configuration with caching.
// If the file is already cached, returns the cached value.
// Otherwise, calls factory to create the target and caches it.
func (l *Loader) LoadCached(subPath string, factory func() any) (any, error) {
	if cached, ok := l.cache.Load(subPath); ok {
		return cached, nil
	}

	target := factory()
	if err := l.Load(subPath, target); err != nil {
		return nil, err
	}

	actual, _ := l.cache.LoadOrStore(subPath, target)
	return actual, nil
}

// ReadFile reads path from the override directory, falling back to the
// embedded filesystem when the file is absent there.
func (l *Loader) ReadFile(path string) ([]byte, error) {
	if l.baseDir != "" {
		data, err := os.ReadFile(filepath.Join(l.baseDir, path))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) || l.fallback == nil {
			return nil, err
		}
	}
	if l.fallback == nil {
		return nil, fmt.Errorf("no configuration source for %s", path)
	}
	return fs.ReadFile(l.fallback, filepath.ToSlash(path))
}

// ClearCache clears the configuration cache.
func (l *Loader) ClearCache() {
	l.cache.Range(func(key, _ any) bool {
		l.cache.Delete(key)
		return true
	})
}
