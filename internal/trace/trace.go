// Package trace records the logical decisions of a development cycle.
//
// A CycleTrace is observational only: it never affects the pipeline. Its
// canonical JSON is stable for identical cycles, so two traces can be
// compared byte for byte.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EventKind is the canonical discriminator for Event. The string values are
// part of the canonical bytes; do not rename.
type EventKind string

const (
	EventStage              EventKind = "Stage"
	EventFileInvalidated    EventKind = "FileInvalidated"
	EventArtifactPromoted   EventKind = "ArtifactPromoted"
	EventFileCompiled       EventKind = "FileCompiled"
	EventArtifactSynced     EventKind = "ArtifactSynced"
	EventManifestRolledBack EventKind = "ManifestRolledBack"
)

// Event is a single logical transition or decision.
//
// No timestamps, error strings or absolute paths: File is source-relative
// and Stage is a stage name.
type Event struct {
	Kind EventKind

	// Stage is set for EventStage.
	Stage string

	// File is the source-relative Kotlin file (or artifact) the event is about.
	File string

	// Reason is a stable reason code, e.g. "Changed" or "NotCached".
	Reason string
}

// CycleTrace is the record of one cycle.
//
// Stage events keep their recorded order (the pipeline is sequential); file
// events are sorted by (file, kind, reason) so the order of filesystem
// operations inside a stage does not matter.
type CycleTrace struct {
	// CycleKey identifies the cycle's input, e.g. a hash of the transpiler's
	// changed and chunk lists.
	CycleKey string
	Stages   []string
	Events   []Event
}

// Validate checks basic invariants.
func (t *CycleTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.CycleKey == "" {
		return errors.New("cycleKey is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Kind == EventStage {
			return fmt.Errorf("events[%d]: stage events belong in Stages", i)
		}
		if e.File == "" {
			return fmt.Errorf("events[%d].file is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts file events into their canonical order.
func (t *CycleTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		return a.Reason < b.Reason
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventFileInvalidated:
		return 10
	case EventArtifactPromoted:
		return 20
	case EventFileCompiled:
		return 30
	case EventArtifactSynced:
		return 40
	case EventManifestRolledBack:
		return 50
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical encoding without mutating t.
func (t CycleTrace) CanonicalJSON() ([]byte, error) {
	c := CycleTrace{CycleKey: t.CycleKey}
	c.Stages = append([]string(nil), t.Stages...)
	c.Events = append([]Event(nil), t.Events...)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Hash returns the sha256 hex of the canonical encoding.
func (t CycleTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile writes the canonical encoding to path, creating parents.
func (t CycleTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// MarshalJSON fixes field order and omits empty optional fields.
func (t CycleTrace) MarshalJSON() ([]byte, error) {
	if t.CycleKey == "" {
		return nil, errors.New("cycleKey is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"cycleKey":`)
	kb, _ := json.Marshal(t.CycleKey)
	buf.Write(kb)

	buf.WriteString(`,"stages":[`)
	for i, s := range t.Stages {
		if i > 0 {
			buf.WriteByte(',')
		}
		sb, _ := json.Marshal(s)
		buf.Write(sb)
	}
	buf.WriteString(`],"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	for _, f := range []struct{ name, value string }{
		{"stage", e.Stage},
		{"file", e.File},
		{"reason", e.Reason},
	} {
		if f.value == "" {
			continue
		}
		buf.WriteString(`,"` + f.name + `":`)
		vb, _ := json.Marshal(f.value)
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
