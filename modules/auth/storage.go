package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record is the persisted form of a Session.
type Record struct {
	AccessToken     string `json:"access_token,omitempty"`
	RefreshToken    string `json:"refresh_token,omitempty"`
	ExpiresAtMillis int64  `json:"token_expiry,omitempty"`
}

// Storage persists one Record per namespace. Save and Delete must be atomic
// for the whole record: a concurrent Load sees the old record or the new one.
type Storage interface {
	Load(ctx context.Context, namespace string) (Record, bool, error)
	Save(ctx context.Context, namespace string, rec Record) error
	Delete(ctx context.Context, namespace string) error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)

// MemoryStorage keeps records for the lifetime of the process.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]Record)}
}

func (m *MemoryStorage) Load(_ context.Context, namespace string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[namespace]
	return rec, ok, nil
}

func (m *MemoryStorage) Save(_ context.Context, namespace string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[namespace] = rec
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, namespace)
	return nil
}

// FileStorage writes each namespace to <dir>/<namespace>.json. Writes go
// through a temp file and a rename so readers never see a partial record.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (f *FileStorage) path(namespace string) (string, error) {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return "", fmt.Errorf("file storage: invalid namespace %q", namespace)
	}
	return filepath.Join(f.dir, namespace+".json"), nil
}

func (f *FileStorage) Load(_ context.Context, namespace string) (Record, bool, error) {
	p, err := f.path(namespace)
	if err != nil {
		return Record{}, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("file storage: read %s: %w", p, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("file storage: decode %s: %w", p, err)
	}
	return rec, true, nil
}

func (f *FileStorage) Save(_ context.Context, namespace string, rec Record) error {
	p, err := f.path(namespace)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("file storage: encode: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("file storage: mkdir %s: %w", f.dir, err)
	}

	tmp, err := os.CreateTemp(f.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("file storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file storage: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file storage: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file storage: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("file storage: rename: %w", err)
	}
	return nil
}

func (f *FileStorage) Delete(_ context.Context, namespace string) error {
	p, err := f.path(namespace)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file storage: remove %s: %w", p, err)
	}
	return nil
}
