package dexcache

import "path/filepath"

func joinRel(base, rel string) string {
	return filepath.Join(base, filepath.FromSlash(rel))
}
