// Package changeset decides which Kotlin files must be compiled to dex in a
// development cycle.
//
// The dex cache, not the transpiler's diff, is authoritative for "needs
// compilation": a file without a cached artifact is always compiled.
package changeset

import (
	"fmt"

	"uvuebuild/internal/core"
)

// ArtifactStore is the subset of the dex mirror the resolver consults.
type ArtifactStore interface {
	CachedPath(kotlinFile string) string
	Exists(artifactPath string) (bool, error)
	Remove(artifactPath string) error
	Promote(kotlinFile string) (bool, error)
}

// Resolution is the outcome of one resolve pass.
type Resolution struct {
	// Files is the change set, absolute paths under the Kotlin source dir.
	Files core.ChangeSet

	// Relative mirrors Files as source-relative paths (manifest keys).
	Relative []string

	// Invalidated lists changed files whose stale cached artifact was deleted.
	Invalidated []string

	// Promoted lists unchanged files whose cached artifact was copied into
	// the output directory.
	Promoted []string
}

// Resolver computes the minimal change set for a cycle.
type Resolver struct {
	Layout    core.Layout
	Artifacts ArtifactStore

	// EntryFile is the application's main Kotlin file. Defaults to
	// core.EntryKotlinFile.
	EntryFile string
}

// NewResolver returns a Resolver for the layout.
func NewResolver(l core.Layout, artifacts ArtifactStore) *Resolver {
	return &Resolver{Layout: l, Artifacts: artifacts, EntryFile: core.EntryKotlinFile}
}

// Resolve computes the change set for result:
//
//  1. Every changed file is added; a cached artifact for it is deleted first.
//  2. The entry file and every chunk not already added is checked against
//     the cache. A cached artifact is promoted into the output (once); a
//     missing one forces compilation.
//
// Ordering follows the transpiler's lists; duplicates are dropped.
func (r *Resolver) Resolve(result core.CompileResult) (Resolution, error) {
	if r == nil || r.Artifacts == nil {
		return Resolution{}, fmt.Errorf("resolver is not configured")
	}

	var res Resolution
	seen := make(map[string]struct{})
	add := func(rel string) {
		seen[rel] = struct{}{}
		res.Relative = append(res.Relative, rel)
		res.Files = append(res.Files, r.Layout.SourcePath(rel))
	}

	for _, f := range result.Changed {
		rel := core.NormalizeRel(f)
		if _, dup := seen[rel]; dup {
			continue
		}
		cached := r.Artifacts.CachedPath(rel)
		ok, err := r.Artifacts.Exists(cached)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			if err := r.Artifacts.Remove(cached); err != nil {
				return Resolution{}, err
			}
			res.Invalidated = append(res.Invalidated, rel)
		}
		add(rel)
	}

	entry := r.EntryFile
	if entry == "" {
		entry = core.EntryKotlinFile
	}
	for _, f := range append([]string{entry}, result.Chunks...) {
		rel := core.NormalizeRel(f)
		if _, dup := seen[rel]; dup {
			continue
		}
		ok, err := r.Artifacts.Exists(r.Artifacts.CachedPath(rel))
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			add(rel)
			continue
		}
		seen[rel] = struct{}{}
		copied, err := r.Artifacts.Promote(rel)
		if err != nil {
			return Resolution{}, err
		}
		if copied {
			res.Promoted = append(res.Promoted, rel)
		}
	}

	return res, nil
}
