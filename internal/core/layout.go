package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Layout is the filesystem layout a development cycle works in.
//
//	{CacheRoot}/
//	  src/    Kotlin sources written by the transpiler (+ .manifest.json)
//	  class/  compiled JVM classes
//	  dex/    cached dex artifacts (source of truth)
//	{OutputDir}/  deployed dex artifacts (projection of dex/)
type Layout struct {
	CacheRoot string
	OutputDir string
}

// NewLayout validates both roots and returns a Layout with cleaned paths.
func NewLayout(cacheRoot, outputDir string) (Layout, error) {
	if strings.TrimSpace(cacheRoot) == "" {
		return Layout{}, fmt.Errorf("cache root is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return Layout{}, fmt.Errorf("output dir is required")
	}
	return Layout{
		CacheRoot: filepath.Clean(cacheRoot),
		OutputDir: filepath.Clean(outputDir),
	}, nil
}

func (l Layout) SrcDir() string   { return filepath.Join(l.CacheRoot, "src") }
func (l Layout) ClassDir() string { return filepath.Join(l.CacheRoot, "class") }
func (l Layout) DexDir() string   { return filepath.Join(l.CacheRoot, "dex") }

// SourcePath resolves a source-relative Kotlin file to its absolute path.
func (l Layout) SourcePath(rel string) string {
	return filepath.Join(l.SrcDir(), filepath.FromSlash(NormalizeRel(rel)))
}

// RelSource converts an absolute Kotlin path under SrcDir back to its
// canonical relative form.
func (l Layout) RelSource(abs string) (string, error) {
	rel, err := filepath.Rel(l.SrcDir(), abs)
	if err != nil {
		return "", fmt.Errorf("relativizing %q: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside %q", abs, l.SrcDir())
	}
	return NormalizeRel(rel), nil
}
