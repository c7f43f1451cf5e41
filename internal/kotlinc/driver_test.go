package kotlinc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvuebuild/internal/core"
	"uvuebuild/internal/logging"
)

// fakeToolchain writes a dex file per source and streams canned stderr.
type fakeToolchain struct {
	resp   Response
	err    error
	stderr string
	slow   bool

	gotOpts Options
	gotDir  string
}

func (f *fakeToolchain) DefaultJar(apiLevel int) string { return fmt.Sprintf("/sdk/android-%d.jar", apiLevel) }
func (f *fakeToolchain) KotlincHome() string            { return "/kotlinc" }

func (f *fakeToolchain) Compile(_ context.Context, opts Options, workDir string) (Response, error) {
	f.gotOpts = opts
	f.gotDir = workDir
	if f.stderr != "" && opts.Stderr != nil {
		if f.slow {
			// Write in chunks to exercise the listener join.
			for _, b := range []byte(f.stderr) {
				_, _ = opts.Stderr.Write([]byte{b})
			}
		} else {
			_, _ = opts.Stderr.Write([]byte(f.stderr))
		}
	}
	if f.resp.Data != nil {
		for _, rel := range f.resp.Data.DexFiles {
			p := filepath.Join(opts.D8.OutDir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return Response{}, err
			}
			if err := os.WriteFile(p, []byte("dex"), 0o644); err != nil {
				return Response{}, err
			}
		}
	}
	return f.resp, f.err
}

func newDriver(t *testing.T, tc Toolchain) (*Driver, core.Layout) {
	t.Helper()
	l, err := core.NewLayout(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return &Driver{
		Toolchain: tc,
		Layout:    l,
		APILevel:  26,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return time.UnixMilli(42) },
	}, l
}

func writeSource(t *testing.T, l core.Layout, rel, body string) string {
	t.Helper()
	p := l.SourcePath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDriver_Success(t *testing.T) {
	tc := &fakeToolchain{resp: Response{Code: 0, Data: &ResponseData{DexFiles: []string{"a/classes.dex"}}}}
	d, l := newDriver(t, tc)
	src := writeSource(t, l, "a.kt", "fun a() {}")
	scratch := t.TempDir()

	out, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{src}, ScratchDir: scratch})
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Equal(t, []string{"a/classes.dex"}, out.DexFiles)
	assert.Contains(t, out.Tokens, "a.kt")
	assert.Equal(t, "main-42", tc.gotOpts.Kotlinc.ModuleName)
	assert.Equal(t, "/sdk/android-26.jar", tc.gotOpts.Kotlinc.Classpath[1])
	assert.Equal(t, scratch, tc.gotOpts.D8.OutDir)
	assert.Equal(t, l.CacheRoot, tc.gotDir)
	assert.DirExists(t, l.ClassDir())
}

func TestDriver_NonzeroCodeIsFailure(t *testing.T) {
	tc := &fakeToolchain{
		resp:   Response{Code: 1, Msg: "type error"},
		stderr: "e: file:///x/c.kt:1:1 type error\n",
		slow:   true,
	}
	d, l := newDriver(t, tc)
	src := writeSource(t, l, "c.kt", "val x: Int = \"\"")

	out, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{src}, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	assert.False(t, out.OK)
	assert.Equal(t, "type error", out.Message)
	assert.Nil(t, out.Tokens)
	require.Len(t, out.Diagnostics, 1, "diagnostics are joined before returning")
	assert.Equal(t, "type error", out.Diagnostics[0].Message)
}

func TestDriver_ZeroCodeWithoutDataIsFailure(t *testing.T) {
	d, l := newDriver(t, &fakeToolchain{resp: Response{Code: 0}})
	src := writeSource(t, l, "d.kt", "")

	out, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{src}, ScratchDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.NotEmpty(t, out.Message)
}

func TestDriver_ToolchainErrorPropagates(t *testing.T) {
	d, l := newDriver(t, &fakeToolchain{err: fmt.Errorf("spawn failed")})
	src := writeSource(t, l, "e.kt", "")

	_, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{src}, ScratchDir: t.TempDir()})
	assert.EqualError(t, err, "spawn failed")
}

func TestDriver_RequiresToolchainAndFiles(t *testing.T) {
	d, _ := newDriver(t, nil)
	_, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{"/x.kt"}, ScratchDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrToolchainUnavailable)

	d.Toolchain = &fakeToolchain{}
	_, err = d.Compile(context.Background(), Request{ScratchDir: t.TempDir()})
	assert.Error(t, err)
}

func TestDriver_RejectsArtifactsOutsideScratch(t *testing.T) {
	for _, bad := range []string{"../x/classes.dex", "a/../../x/classes.dex", "/abs/classes.dex", "./../y.dex"} {
		t.Run(bad, func(t *testing.T) {
			scratch := filepath.Join(t.TempDir(), "scratch")
			tc := &fakeToolchain{resp: Response{Code: 0, Data: &ResponseData{DexFiles: []string{bad}}}}
			d, l := newDriver(t, tc)
			src := writeSource(t, l, "a.kt", "fun a() {}")

			_, err := d.Compile(context.Background(), Request{Files: core.ChangeSet{src}, ScratchDir: scratch})
			assert.ErrorIs(t, err, ErrArtifactOutsideOutput)
		})
	}
}
