// Package manifest persists the mapping from compiled Kotlin files to their
// build-state tokens across incremental cycles.
//
// The manifest is a flat JSON object stored at
//
//	<srcDir>/.manifest.json
//
// A key present in the manifest means the file has a valid dex artifact in
// the cache, unless the file is currently being compiled.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"uvuebuild/internal/core"
)

// FileName is the hidden manifest file inside the Kotlin source directory.
const FileName = ".manifest.json"

// PreviousFileName holds the manifest as it was before the last Record.
const PreviousFileName = ".manifest.prev.json"

// Manifest maps a source-relative Kotlin path to an opaque build token.
type Manifest map[string]string

// Clone returns an independent copy. A nil manifest clones to an empty one.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store reads and writes the manifest file.
type Store struct {
	path string
}

// NewStore returns a Store for the manifest inside srcDir.
func NewStore(srcDir string) *Store {
	return &Store{path: filepath.Join(srcDir, FileName)}
}

// Path returns the manifest file location.
func (s *Store) Path() string { return s.path }

// Read loads the manifest. A missing file is not an error: it returns
// (nil, false, nil) so callers can treat it as "no previous build".
func (s *Store) Read() (Manifest, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading manifest: %w", err)
	}
	m := Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("parsing manifest %s: %w", s.path, err)
	}
	return m, true, nil
}

// Write overwrites the manifest with m using write-to-temp-then-rename.
// encoding/json sorts map keys, so equal manifests produce equal bytes.
func (s *Store) Write(m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')
	if err := core.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Rollback removes the entries for files whose compilation failed, so the
// next cycle retries them from scratch. Entries are deleted, never
// overwritten with partial state. Without a manifest on disk there is
// nothing to roll back.
func (s *Store) Rollback(files []string) (removed []string, err error) {
	m, ok, err := s.Read()
	if err != nil || !ok {
		return nil, err
	}
	for _, f := range files {
		key := core.NormalizeRel(f)
		if _, present := m[key]; present {
			delete(m, key)
			removed = append(removed, key)
		}
	}
	if err := s.Write(m); err != nil {
		return nil, err
	}
	return removed, nil
}

// Record merges tokens for freshly compiled files into the manifest and
// returns the manifest as it was before the update.
func (s *Store) Record(tokens map[string]string) (before Manifest, err error) {
	m, _, err := s.Read()
	if err != nil {
		return nil, err
	}
	before = m.Clone()
	if err := (&Store{path: s.previousPath()}).Write(before); err != nil {
		return nil, err
	}
	next := m.Clone()
	for file, token := range tokens {
		next[core.NormalizeRel(file)] = token
	}
	if err := s.Write(next); err != nil {
		return nil, err
	}
	return before, nil
}

func (s *Store) previousPath() string {
	return filepath.Join(filepath.Dir(s.path), PreviousFileName)
}

// Previous reads the manifest snapshot taken by the last Record.
func (s *Store) Previous() (Manifest, bool, error) {
	return (&Store{path: s.previousPath()}).Read()
}
