package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: &buf})

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("failed: %s", "boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] shown 2")
	assert.Contains(t, out, "[ERROR] failed: boom")
}

func TestLogger_DebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: &buf, Debug: true})
	l.Debugf("visible")
	assert.Contains(t, buf.String(), "[DEBUG] visible")
}

func TestLogger_FileReceivesDebug(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "build.log")
	l := New(Options{Console: &buf, File: path})

	l.Debugf("to file only")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] to file only")
	assert.Empty(t, buf.String())
}

func TestLogger_NilAndDiscardAreSafe(t *testing.T) {
	var l *Logger
	l.Errorf("nothing")
	assert.NoError(t, l.Close())

	Discard().Errorf("dropped")
}
