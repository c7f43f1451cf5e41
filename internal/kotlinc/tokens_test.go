package kotlinc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHasher_ChangesWithContent(t *testing.T) {
	h, err := NewTokenHasher(8)
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "a.kt")
	require.NoError(t, os.WriteFile(p, []byte("fun a() {}"), 0o644))

	t1, err := h.Token(p)
	require.NoError(t, err)
	again, err := h.Token(p)
	require.NoError(t, err)
	assert.Equal(t, t1, again)
	assert.Len(t, t1, 64)

	require.NoError(t, os.WriteFile(p, []byte("fun a() { println() }"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, future, future))

	t2, err := h.Token(p)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestTokenHasher_MissingFile(t *testing.T) {
	h, err := NewTokenHasher(0)
	require.NoError(t, err)
	_, err = h.Token(filepath.Join(t.TempDir(), "missing.kt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
