package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// StorageInfo describes one storage directory under the router's base dir.
type StorageInfo struct {
	Name   string `json:"name"`
	DBPath string `json:"db_path"`
}

// StoreRouter manages one graph database per named storage.
// Each storage is a directory <base>/<name>/ holding graph.db and the manifest.
type StoreRouter struct {
	dir    string            // base directory
	stores map[string]*Store // storage name → open Store (lazy)
	mu     sync.Mutex
}

// NewRouter creates a StoreRouter rooted at dir, creating it if needed.
func NewRouter(dir string) (*StoreRouter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &StoreRouter{
		dir:    dir,
		stores: make(map[string]*Store),
	}, nil
}

// ValidName reports whether name is usable as a storage directory name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// StorageDir returns the directory of the named storage.
func (r *StoreRouter) StorageDir(name string) string {
	return filepath.Join(r.dir, name)
}

// ForStorage returns the Store for the named storage, opening it lazily.
func (r *StoreRouter) ForStorage(name string) (*Store, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid storage name: %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}

	s, err := Open(r.StorageDir(name))
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	r.stores[name] = s
	return s, nil
}

// HasStorage checks if a database exists for the named storage (without opening it).
func (r *StoreRouter) HasStorage(name string) bool {
	if !ValidName(name) {
		return false
	}
	_, err := os.Stat(filepath.Join(r.StorageDir(name), DBFile))
	return err == nil
}

// ListStorages returns every storage under the base dir that holds a database, sorted by name.
func (r *StoreRouter) ListStorages() ([]StorageInfo, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("readdir: %w", err)
	}

	result := make([]StorageInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !r.HasStorage(e.Name()) {
			continue
		}
		result = append(result, StorageInfo{
			Name:   e.Name(),
			DBPath: filepath.Join(r.StorageDir(e.Name()), DBFile),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// DeleteStorage closes the Store connection and removes the storage directory.
func (r *StoreRouter) DeleteStorage(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid storage name: %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		s.Close()
		delete(r.stores, name)
	}
	if err := os.RemoveAll(r.StorageDir(name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	slog.Info("router.delete", "storage", name)
	return nil
}

// Dir returns the base directory path.
func (r *StoreRouter) Dir() string {
	return r.dir
}

// CloseAll closes all open Store connections.
func (r *StoreRouter) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, s := range r.stores {
		if err := s.Close(); err != nil {
			slog.Warn("router.close", "storage", name, "err", err)
		}
	}
	r.stores = make(map[string]*Store)
}
