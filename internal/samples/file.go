package samples

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// maxLineBytes bounds a single JSON line when reading the file back.
const maxLineBytes = 1 << 20

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore persists samples as JSON lines in a local file.
// Safe for concurrent use within one process.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Save appends s to the file.
func (fs *FileStore) Save(_ context.Context, s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("samples: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("samples: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("samples: write: %w", err)
	}
	return nil
}

// Recent reads the file and returns the last limit samples, newest first.
// A missing file yields no samples. Lines that fail to decode are skipped.
func (fs *FileStore) Recent(_ context.Context, limit int) ([]Sample, error) {
	if limit <= 0 {
		return nil, nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("samples: open file: %w", err)
	}
	defer f.Close()

	var all []Sample
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			slog.Warn("samples: skipping malformed line", "path", fs.path, "line", line, "err", err)
			continue
		}
		all = append(all, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("samples: read file: %w", err)
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	slices.Reverse(all)
	return all, nil
}

// Ping checks that the directory holding the file exists.
func (fs *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(fs.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("samples: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("samples: %s is not a directory", dir)
	}
	return nil
}
