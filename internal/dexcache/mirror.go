// Package dexcache maintains the cache of compiled dex artifacts and mirrors
// them into the active output directory.
//
// The cache copy is the source of truth; the output copy is a projection kept
// in sync with it. Both are keyed by the Kotlin source's relative path:
//
//	<base>/<rel without .kt>/classes.dex
package dexcache

import (
	"errors"
	"fmt"
	"os"

	"uvuebuild/internal/core"
)

// Mirror owns the dex cache directory and its projection in the output dir.
type Mirror struct {
	// CacheDir holds cached dex artifacts.
	CacheDir string

	// OutputDir receives deployed copies.
	OutputDir string
}

// NewMirror returns a Mirror over the layout's dex cache and output dirs.
func NewMirror(l core.Layout) *Mirror {
	return &Mirror{CacheDir: l.DexDir(), OutputDir: l.OutputDir}
}

// ArtifactPathFor derives the artifact location for kotlinFile under baseDir.
func (m *Mirror) ArtifactPathFor(baseDir, kotlinFile string) string {
	return core.ArtifactPathFor(baseDir, kotlinFile)
}

// CachedPath is the cache location of kotlinFile's artifact.
func (m *Mirror) CachedPath(kotlinFile string) string {
	return core.ArtifactPathFor(m.CacheDir, kotlinFile)
}

// OutputPath is the deployed location of kotlinFile's artifact.
func (m *Mirror) OutputPath(kotlinFile string) string {
	return core.ArtifactPathFor(m.OutputDir, kotlinFile)
}

// Exists reports whether an artifact file is present. Stat failures other
// than "not exist" are returned.
func (m *Mirror) Exists(artifactPath string) (bool, error) {
	info, err := os.Stat(artifactPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking artifact %s: %w", artifactPath, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("artifact path %s is a directory", artifactPath)
	}
	return true, nil
}

// Copy copies an artifact across directories, creating parents as needed.
// The destination is replaced atomically.
func (m *Mirror) Copy(from, to string) error {
	content, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", from, err)
	}
	if err := core.WriteFileAtomic(to, content, 0o644); err != nil {
		return fmt.Errorf("copying artifact to %s: %w", to, err)
	}
	return nil
}

// Remove deletes a stale artifact. A missing artifact is not an error.
func (m *Mirror) Remove(artifactPath string) error {
	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing artifact %s: %w", artifactPath, err)
	}
	return nil
}

// Promote copies kotlinFile's cached artifact into the output directory
// unless the output already has it. It reports whether a copy happened.
func (m *Mirror) Promote(kotlinFile string) (bool, error) {
	dst := m.OutputPath(kotlinFile)
	present, err := m.Exists(dst)
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}
	if err := m.Copy(m.CachedPath(kotlinFile), dst); err != nil {
		return false, err
	}
	return true, nil
}

// Sync mirrors a freshly produced artifact, given relative to CacheDir,
// into the output directory. Unlike Promote it always overwrites.
func (m *Mirror) Sync(artifactRel string) error {
	rel := core.NormalizeRel(artifactRel)
	return m.Copy(joinRel(m.CacheDir, rel), joinRel(m.OutputDir, rel))
}

// Import copies an artifact the compiler wrote to a scratch directory into
// the cache, then into the output. artifactRel is relative to scratchDir.
func (m *Mirror) Import(scratchDir, artifactRel string) error {
	rel := core.NormalizeRel(artifactRel)
	if err := m.Copy(joinRel(scratchDir, rel), joinRel(m.CacheDir, rel)); err != nil {
		return err
	}
	return m.Sync(rel)
}
