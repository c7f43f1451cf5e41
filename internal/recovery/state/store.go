package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultRetention is how many cycle directories Prune keeps.
const DefaultRetention = 20

// Store persists cycle state under:
//
//	<baseDir>/.uvuebuild/cycles/<cycle-id>/
//
// All writes are atomic and durable (file sync + atomic rename + dir sync).
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) cyclesRootDir() string {
	return filepath.Join(s.baseDir, ".uvuebuild", "cycles")
}

func (s *Store) cycleDir(id string) string {
	return filepath.Join(s.cyclesRootDir(), id)
}

func (s *Store) cyclePath(id string) string {
	return filepath.Join(s.cycleDir(id), "cycle.json")
}

func (s *Store) failurePath(id string) string {
	return filepath.Join(s.cycleDir(id), "failure.json")
}

// ListCycleIDs returns the IDs of all cycle directories, sorted lexically.
func (s *Store) ListCycleIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	entries, err := os.ReadDir(s.cyclesRootDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.TrimSpace(e.Name()) == "" {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Cycles loads every readable cycle, oldest first. Directories whose
// cycle.json is missing or corrupt are skipped.
func (s *Store) Cycles() ([]Cycle, error) {
	ids, err := s.ListCycleIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Cycle, 0, len(ids))
	for _, id := range ids {
		c, err := s.LoadCycle(id)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].CycleID < out[j].CycleID
	})
	return out, nil
}

// LatestCycle returns the most recently started cycle.
func (s *Store) LatestCycle() (Cycle, bool, error) {
	cycles, err := s.Cycles()
	if err != nil {
		return Cycle{}, false, err
	}
	if len(cycles) == 0 {
		return Cycle{}, false, nil
	}
	return cycles[len(cycles)-1], true, nil
}

// Prune removes all but the newest keep cycles and returns the removed IDs.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	cycles, err := s.Cycles()
	if err != nil {
		return nil, err
	}
	if len(cycles) <= keep {
		return nil, nil
	}
	var removed []string
	for _, c := range cycles[:len(cycles)-keep] {
		if err := os.RemoveAll(s.cycleDir(c.CycleID)); err != nil {
			return removed, fmt.Errorf("remove cycle %s: %w", c.CycleID, err)
		}
		removed = append(removed, c.CycleID)
	}
	return removed, nil
}

func (s *Store) SaveCycle(c Cycle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid cycle: %w", err)
	}
	// Arrays, not null.
	if c.Stages == nil {
		c.Stages = []string{}
	}
	if c.Compiled == nil {
		c.Compiled = []string{}
	}
	if c.Changed == nil {
		c.Changed = []string{}
	}
	if err := ensureDirDurable(s.cycleDir(c.CycleID), 0o755); err != nil {
		return fmt.Errorf("ensure cycle dir: %w", err)
	}
	data, err := jsonMarshalStable(c)
	if err != nil {
		return fmt.Errorf("marshal cycle: %w", err)
	}
	if err := writeFileAtomicDurable(s.cyclePath(c.CycleID), data, 0o644); err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	return nil
}

func (s *Store) LoadCycle(id string) (Cycle, error) {
	var c Cycle
	if strings.TrimSpace(id) == "" {
		return Cycle{}, errors.New("cycleID is required")
	}
	if err := readJSONStrict(s.cyclePath(id), &c); err != nil {
		return Cycle{}, err
	}
	if err := c.Validate(); err != nil {
		return Cycle{}, fmt.Errorf("invalid cycle on disk: %w", err)
	}
	return c, nil
}

func (s *Store) SaveFailure(id string, failure Failure) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("cycleID is required")
	}
	if err := failure.Validate(); err != nil {
		return fmt.Errorf("invalid failure: %w", err)
	}
	if err := ensureDirDurable(s.cycleDir(id), 0o755); err != nil {
		return fmt.Errorf("ensure cycle dir: %w", err)
	}
	data, err := jsonMarshalStable(failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	if err := writeFileAtomicDurable(s.failurePath(id), data, 0o644); err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}

// LoadFailure returns (Failure{}, false, nil) when the cycle has no failure.
func (s *Store) LoadFailure(id string) (Failure, bool, error) {
	var failure Failure
	if strings.TrimSpace(id) == "" {
		return Failure{}, false, errors.New("cycleID is required")
	}
	if err := readJSONStrict(s.failurePath(id), &failure); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Failure{}, false, nil
		}
		return Failure{}, false, err
	}
	if err := failure.Validate(); err != nil {
		return Failure{}, false, fmt.Errorf("invalid failure on disk: %w", err)
	}
	return failure, true, nil
}

func jsonMarshalStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readJSONStrict(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := fsyncDir(dir); err != nil {
		return err
	}
	if parent := filepath.Dir(dir); parent != dir {
		return fsyncDir(parent)
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
