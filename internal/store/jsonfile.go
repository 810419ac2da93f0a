package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// jsonFile is a whole-file JSON array. Every mutation reads the full file,
// changes it in memory and overwrites it. The mutex serializes writers inside
// this process only.
type jsonFile[T any] struct {
	mu   sync.Mutex
	path string
}

// init creates the file holding an empty array when it is missing or blank.
func (f *jsonFile[T]) init() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		return nil
	}
	return f.write([]T{})
}

// read returns an empty slice for a missing or blank file. Parse errors are
// returned as-is.
func (f *jsonFile[T]) read() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (f *jsonFile[T]) write(records []T) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// mutate runs fn over the current records under the lock and writes the
// result back when fn reports a change.
func (f *jsonFile[T]) mutate(fn func([]T) ([]T, bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.read()
	if err != nil {
		return err
	}
	updated, changed, err := fn(records)
	if err != nil || !changed {
		return err
	}
	return f.write(updated)
}

func (f *jsonFile[T]) list() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}
