package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

type Storer[T ValidatingSpec] interface {
	Save(string, T) error
	Get(string) T
	GetAll() map[string]T
}

type FileStoreOpt func(*storeConfig)

type storeConfig struct {
	ext string
}

// WithExtension sets the file extension new records are saved with, such
// as ".yaml" or ".json.zst".
func WithExtension(ext string) FileStoreOpt {
	return func(c *storeConfig) {
		c.ext = ext
	}
}

// FileStore keeps one asset per file under a directory tree and caches the
// decoded specs in memory.
type FileStore[T ValidatingSpec] struct {
	path    string
	ext     string
	records map[string]T
	files   map[string]string

	mu sync.RWMutex
}

func NewFileStore[T ValidatingSpec](path string, opts ...FileStoreOpt) (*FileStore[T], error) {
	cfg := &storeConfig{ext: ".json"}
	for _, opt := range opts {
		opt(cfg)
	}
	if !Supported("record" + cfg.ext) {
		return nil, fmt.Errorf("unsupported store extension %q", cfg.ext)
	}

	s := &FileStore[T]{
		path: path,
		ext:  cfg.ext,
	}

	err := s.load()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Reload discards the cache and reads every asset from disk again.
func (s *FileStore[T]) Reload() error {
	return s.load()
}

func (s *FileStore[T]) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clear existing records when loading
	s.records = map[string]T{}
	s.files = map[string]string{}

	return filepath.Walk(s.path, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() || !Supported(path) {
			return nil
		}

		asset, err := ReadFile[T](path)
		if err != nil {
			return err
		}

		// Error if the key is already in use
		id := asset.Id().String()
		if prev, ok := s.files[id]; ok {
			return fmt.Errorf("duplicate key detected: %s (%s and %s)", id, filepath.Base(prev), filepath.Base(path))
		}

		s.records[id] = asset.Spec
		s.files[id] = path
		return nil
	})
}

// Save stores o under id, replacing the file it was loaded from if any.
func (s *FileStore[T]) Save(id string, o T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset := NewAsset(Identifier(id), o)
	if err := asset.Validate(); err != nil {
		return fmt.Errorf("validating %s: %w", id, err)
	}

	path, ok := s.files[id]
	if !ok {
		path = s.filePath(id)
	}
	if err := WriteFile(path, asset); err != nil {
		return err
	}

	s.records[id] = o
	s.files[id] = path
	return nil
}

func (s *FileStore[T]) Get(id string) T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records[id]
}

func (s *FileStore[T]) GetAll() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals := make(map[string]T, len(s.records))
	for id, v := range s.records {
		vals[id] = v
	}

	return vals
}

// Ids returns the stored identifiers in sorted order.
func (s *FileStore[T]) Ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *FileStore[T]) filePath(id string) string {
	return filepath.Join(s.path, id+s.ext)
}

// ReadFile reads and validates a single asset.
func ReadFile[T ValidatingSpec](path string) (*Asset[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	asset := &Asset[T]{}
	if err := Unmarshal(path, data, asset); err != nil {
		return nil, err
	}

	if err := asset.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filepath.Base(path), err)
	}

	return asset, nil
}

// WriteFile encodes asset for the file type of path and writes it
// atomically.
func WriteFile[T ValidatingSpec](path string, asset *Asset[T]) error {
	data, err := Marshal(path, asset)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	return atomicWrite(path, data, 0o644)
}

// IdentifierFromPath derives an asset identifier from a file name by
// dropping every extension.
func IdentifierFromPath(path string) Identifier {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return Identifier(base)
}

// atomicWrite writes data to a temp file then renames it to the target path.
// This prevents partial or empty files if the process is interrupted.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			slog.Warn("failed to remove temp file after rename failure", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
