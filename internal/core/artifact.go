package core

import (
	"path"
	"path/filepath"
	"strings"
)

// DexArtifactName is the fixed file name of a dex artifact inside the
// directory derived from its Kotlin source.
const DexArtifactName = "classes.dex"

// EntryKotlinFile is the application's main Kotlin file, relative to
// Layout.SrcDir.
const EntryKotlinFile = "index.kt"

// KotlinExt is the suffix stripped when deriving artifact directories.
const KotlinExt = ".kt"

// ArtifactRelPath returns the dex artifact path for kotlinFile relative to
// any artifact base directory.
//
//	pages/index/index.kt -> pages/index/index/classes.dex
func ArtifactRelPath(kotlinFile string) string {
	rel := NormalizeRel(kotlinFile)
	rel = strings.TrimSuffix(rel, KotlinExt)
	return path.Join(rel, DexArtifactName)
}

// ArtifactPathFor derives the dex artifact location for kotlinFile rooted at
// baseDir. The derivation is deterministic and does not touch the disk.
func ArtifactPathFor(baseDir, kotlinFile string) string {
	return filepath.Join(baseDir, filepath.FromSlash(ArtifactRelPath(kotlinFile)))
}

// NormalizeRel converts a source-relative path to its canonical form:
// forward slashes, cleaned, no leading "./".
func NormalizeRel(p string) string {
	p = filepath.ToSlash(p)
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
