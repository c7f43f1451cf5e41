package kotlinc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultTokenCacheSize = 4096

// TokenHasher computes manifest tokens (content hashes) for Kotlin sources.
// Results are memoized by path, size and modification time so unchanged
// files are not re-read across watch-mode cycles.
type TokenHasher struct {
	cache *lru.Cache[string, string]
}

// NewTokenHasher returns a hasher remembering up to size files.
func NewTokenHasher(size int) (*TokenHasher, error) {
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &TokenHasher{cache: c}, nil
}

// Token returns the build token for the file at path.
func (h *TokenHasher) Token(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if h.cache != nil {
		if tok, ok := h.cache.Get(key); ok {
			return tok, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	tok := hex.EncodeToString(sum.Sum(nil))
	if h.cache != nil {
		h.cache.Add(key, tok)
	}
	return tok, nil
}
