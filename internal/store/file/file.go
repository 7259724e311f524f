// Package file stores credential records in a JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

// document is the on-disk layout.
type document struct {
	Credentials []credential.Record `json:"credentials"`
}

// Store reads the file on every Get so hand edits take effect without a
// restart. Writes replace the file atomically.
type Store struct {
	path string
	mu   sync.RWMutex
}

// New returns a Store backed by path. A missing file behaves as empty and is
// created on the first Put.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("file store: path is required")
	}
	s := &Store{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the record for key.
func (s *Store) Get(_ context.Context, key string) (credential.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return credential.Record{}, err
	}
	r, ok := records[key]
	if !ok {
		return credential.Record{}, credential.ErrNotFound
	}
	return r, nil
}

// Put overwrites the record stored under r.Key.
func (s *Store) Put(_ context.Context, r credential.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[r.Key] = r
	return s.write(records)
}

func (s *Store) load() (map[string]credential.Record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]credential.Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	records := make(map[string]credential.Record, len(doc.Credentials))
	for _, r := range doc.Credentials {
		records[r.Key] = r
	}
	return records, nil
}

func (s *Store) write(records map[string]credential.Record) error {
	doc := document{Credentials: make([]credential.Record, 0, len(records))}
	for _, r := range records {
		doc.Credentials = append(doc.Credentials, r)
	}
	sort.Slice(doc.Credentials, func(i, j int) bool {
		return doc.Credentials[i].Key < doc.Credentials[j].Key
	})

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "credentials-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

var _ credential.Store = (*Store)(nil)
