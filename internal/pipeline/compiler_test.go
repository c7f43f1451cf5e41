package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uvuebuild/internal/config"
	"uvuebuild/internal/core"
	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/logging"
	"uvuebuild/internal/recovery/state"
	"uvuebuild/internal/trace"
	"uvuebuild/internal/transpile"
)

// fakeTranspiler writes the given Kotlin sources and returns a canned result.
type fakeTranspiler struct {
	sources map[string]string
	result  *core.CompileResult
	err     error

	gotOpts transpile.Options
}

func (f *fakeTranspiler) Transpile(_ context.Context, opts transpile.Options) (*core.CompileResult, error) {
	f.gotOpts = opts
	for rel, body := range f.sources {
		p := filepath.Join(opts.Output.OutDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, nil
	}
	r := *f.result
	return &r, nil
}

// fakeToolchain emits one dex per submitted source unless fail is set.
type fakeToolchain struct {
	srcDir string
	fail   *kotlinc.Response

	calls    int
	compiled [][]string
}

func (f *fakeToolchain) DefaultJar(apiLevel int) string { return fmt.Sprintf("/sdk/android-%d.jar", apiLevel) }
func (f *fakeToolchain) KotlincHome() string            { return "/kotlinc" }

func (f *fakeToolchain) Compile(_ context.Context, opts kotlinc.Options, _ string) (kotlinc.Response, error) {
	f.calls++
	var rels []string
	for _, abs := range opts.Kotlinc.Files {
		rel, err := filepath.Rel(f.srcDir, abs)
		if err != nil {
			return kotlinc.Response{}, err
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	f.compiled = append(f.compiled, rels)
	if f.fail != nil {
		return *f.fail, nil
	}
	var dex []string
	for _, rel := range rels {
		out := core.ArtifactRelPath(rel)
		p := filepath.Join(opts.D8.OutDir, filepath.FromSlash(out))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return kotlinc.Response{}, err
		}
		if err := os.WriteFile(p, []byte("dex:"+rel), 0o644); err != nil {
			return kotlinc.Response{}, err
		}
		dex = append(dex, out)
	}
	return kotlinc.Response{Code: 0, Data: &kotlinc.ResponseData{DexFiles: dex}}, nil
}

type fixture struct {
	cfg        *config.Config
	transpiler *fakeTranspiler
	toolchain  *fakeToolchain
	store      *state.Store
	compiler   *Compiler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Mode:            config.ModeDevelopment,
		InputDir:        filepath.Join(root, "app"),
		OutputDir:       filepath.Join(root, "out"),
		CacheRoot:       filepath.Join(root, "cache"),
		ModulesCacheDir: filepath.Join(root, "modules"),
		PackageName:     "uni.UNIAPPX",
		EntryFile:       "main.uts",
		AndroidAPI:      21,
		Globals:         map[string]string{"NODE_ENV": "development"},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.InputDir, "uni_modules", "uni-foo"), 0o755))

	store, err := state.NewStore(cfg.CacheRoot)
	require.NoError(t, err)

	f := &fixture{cfg: cfg, transpiler: &fakeTranspiler{}, store: store}
	c, err := New(cfg, Deps{
		Transpiler: f.transpiler,
		Toolchain: func() (kotlinc.Toolchain, error) {
			if f.toolchain == nil {
				return nil, fmt.Errorf("%w: test", kotlinc.ErrToolchainUnavailable)
			}
			return f.toolchain, nil
		},
		Logger:   logging.Discard(),
		Recorder: state.NewFailureRecorder(store),
	})
	require.NoError(t, err)
	f.compiler = c
	f.toolchain = &fakeToolchain{srcDir: c.Layout().SrcDir()}
	return f
}

func (f *fixture) transpile(changed, chunks []string) {
	f.transpiler.err = nil
	f.transpiler.sources = map[string]string{}
	for _, rel := range append(append([]string{}, changed...), chunks...) {
		f.transpiler.sources[rel] = "// " + rel
	}
	f.transpiler.result = &core.CompileResult{Filename: "index.kt", Changed: changed, Chunks: chunks}
}

func exists(t *testing.T, p string) bool {
	t.Helper()
	_, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestCompileApp_FirstBuildCompilesAndMirrors(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt"}, []string{"pages/a.kt"})

	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Kotlinc)
	assert.Equal(t, core.TargetKotlin, res.Type)
	assert.Equal(t, []string{"index/classes.dex", "pages/a/classes.dex"}, res.Changed)
	assert.Equal(t, [][]string{{"index.kt", "pages/a.kt"}}, f.toolchain.compiled)

	l := f.compiler.Layout()
	for _, dex := range res.Changed {
		assert.True(t, exists(t, filepath.Join(l.DexDir(), filepath.FromSlash(dex))), "cache copy of %s", dex)
		assert.True(t, exists(t, filepath.Join(l.OutputDir, filepath.FromSlash(dex))), "output copy of %s", dex)
	}

	m, ok, err := f.compiler.Manifest().Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, m, 2)
	assert.Contains(t, m, "index.kt")
	assert.Contains(t, m, "pages/a.kt")

	// The transpiler is driven from the config.
	assert.Equal(t, l.SrcDir(), f.transpiler.gotOpts.Output.OutDir)
	assert.Equal(t, []string{"uni-foo"}, f.transpiler.gotOpts.UniModules)
	assert.Equal(t, "development", f.transpiler.gotOpts.Globals["NODE_ENV"])

	tr := f.compiler.LastTrace()
	assert.Equal(t, []string{"Transpiling", "Success", "DevelopmentCycle", "Compiling", "DexSuccess"}, tr.Stages)

	// No scratch directories are left behind.
	matches, _ := filepath.Glob(filepath.Join(l.CacheRoot, ".dex-*"))
	assert.Empty(t, matches)
}

func TestCompileApp_SecondRunWithoutChangesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt", "pages/a.kt"}, []string{"pages/a.kt"})
	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	out := filepath.Join(f.compiler.Layout().OutputDir, "pages", "a", "classes.dex")
	before, err := os.Stat(out)
	require.NoError(t, err)

	f.transpile(nil, []string{"pages/a.kt"})
	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, f.toolchain.calls)
	assert.False(t, res.Kotlinc)
	assert.NotNil(t, res.Changed)
	assert.Empty(t, res.Changed)

	after, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, []string{"Transpiling", "Success", "DevelopmentCycle", "NoChangesNeeded"}, f.compiler.LastTrace().Stages)
}

func TestCompileApp_PromotesCachedArtifactMissingFromOutput(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt"}, nil)
	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	out := filepath.Join(f.compiler.Layout().OutputDir, "index", "classes.dex")
	require.NoError(t, os.Remove(out))

	f.transpile(nil, nil)
	_, err = f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	assert.True(t, exists(t, out))
	assert.Equal(t, 1, f.toolchain.calls)
	assert.Contains(t, f.compiler.LastTrace().Events, trace.Event{Kind: trace.EventArtifactPromoted, File: "index.kt", Reason: "Cached"})
}

func TestCompileApp_CompileFailureRollsBackManifest(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt", "c.kt"}, nil)
	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	l := f.compiler.Layout()
	cached := filepath.Join(l.DexDir(), "c", "classes.dex")
	deployed := filepath.Join(l.OutputDir, "c", "classes.dex")
	require.True(t, exists(t, cached))

	f.toolchain.fail = &kotlinc.Response{Code: 1, Msg: "type error"}
	f.transpile([]string{"c.kt"}, nil)
	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Kotlinc)
	assert.Empty(t, res.Changed)

	m, _, err := f.compiler.Manifest().Read()
	require.NoError(t, err)
	assert.NotContains(t, m, "c.kt")
	assert.Contains(t, m, "index.kt")

	// The stale cached artifact was dropped before compiling; the last good
	// deployed copy stays in place.
	assert.False(t, exists(t, cached))
	assert.True(t, exists(t, deployed))
	assert.Equal(t, []string{"c.kt"}, f.toolchain.compiled[1])

	tr := f.compiler.LastTrace()
	assert.Equal(t, StageDexFailure, f.compiler.LastStage())
	assert.Contains(t, tr.Events, trace.Event{Kind: trace.EventFileInvalidated, File: "c.kt", Reason: "Changed"})
	assert.Contains(t, tr.Events, trace.Event{Kind: trace.EventManifestRolledBack, File: "c.kt"})

	last, ok, err := f.store.LatestCycle()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.CycleStatusFailed, last.Status)
	failure, ok, err := f.store.LoadFailure(last.CycleID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.FailureClassCompile, failure.FailureClass)
	assert.Equal(t, "type error", failure.ErrorMessage)

	// Fixing the source recompiles the file from scratch.
	f.toolchain.fail = nil
	f.transpile([]string{"c.kt"}, nil)
	res, err = f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c/classes.dex"}, res.Changed)
	m, _, _ = f.compiler.Manifest().Read()
	assert.Contains(t, m, "c.kt")
}

func TestCompileApp_SyntaxErrorHalts(t *testing.T) {
	f := newFixture(t)
	f.transpiler.err = &transpile.SyntaxError{File: "pages/index.uvue", Line: 4, Column: 2, Message: "unexpected }"}

	res, err := f.compiler.CompileApp(context.Background())
	assert.Nil(t, res)
	var se *transpile.SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Line)
	assert.Zero(t, f.toolchain.calls)
	assert.Equal(t, []string{"Transpiling", "SyntaxError"}, f.compiler.LastTrace().Stages)

	last, ok, err := f.store.LatestCycle()
	require.NoError(t, err)
	require.True(t, ok)
	failure, ok, err := f.store.LoadFailure(last.CycleID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.FailureClassSyntax, failure.FailureClass)
}

func TestCompileApp_NothingToBuild(t *testing.T) {
	f := newFixture(t)
	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, f.toolchain.calls)
}

func TestCompileApp_NothingGeneratedYetSkipsCompilation(t *testing.T) {
	f := newFixture(t)
	f.transpiler.result = &core.CompileResult{}

	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Kotlinc)
	assert.NotNil(t, res.Changed)
	assert.Empty(t, res.Changed)
	assert.Zero(t, f.toolchain.calls)
	assert.Equal(t, []string{"Transpiling", "Success", "DevelopmentCycle", "NoChangesNeeded"}, f.compiler.LastTrace().Stages)
}

func TestCompileApp_MissingEntryIsLeftOutOfTheChangeSet(t *testing.T) {
	f := newFixture(t)
	// The transpiler has not produced the entry file yet; the uncached chunk
	// still compiles.
	f.transpiler.sources = map[string]string{"pages/a.kt": "// a"}
	f.transpiler.result = &core.CompileResult{Chunks: []string{"pages/a.kt"}}

	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Kotlinc)
	assert.Equal(t, []string{"pages/a/classes.dex"}, res.Changed)
	assert.Equal(t, [][]string{{"pages/a.kt"}}, f.toolchain.compiled)

	// Once the entry exists, only it is missing from the cache.
	f.transpile([]string{"index.kt"}, []string{"pages/a.kt"})
	res, err = f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"index/classes.dex"}, res.Changed)
	assert.Equal(t, []string{"index.kt"}, f.toolchain.compiled[1])
}

func TestCompileApp_ChangedFileCompilesWhileEntryIsMissing(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt", "c.kt"}, nil)
	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	l := f.compiler.Layout()
	require.NoError(t, os.Remove(l.SourcePath("index.kt")))

	f.transpile([]string{"c.kt"}, nil)
	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 2, f.toolchain.calls)
	assert.Equal(t, []string{"c.kt"}, f.toolchain.compiled[1])
	assert.True(t, res.Kotlinc)
	assert.Equal(t, []string{"c/classes.dex"}, res.Changed)
	assert.Equal(t, StageDexSuccess, f.compiler.LastStage())

	m, _, err := f.compiler.Manifest().Read()
	require.NoError(t, err)
	assert.Contains(t, m, "c.kt")
	assert.True(t, exists(t, filepath.Join(l.DexDir(), "c", "classes.dex")))
}

func TestCompileApp_ProductionReturnsTranspilerOutput(t *testing.T) {
	f := newFixture(t)
	f.cfg.Mode = config.ModeProduction
	f.transpile([]string{"index.kt"}, nil)

	res, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"index.kt"}, res.Changed)
	assert.False(t, res.Kotlinc)
	assert.Zero(t, f.toolchain.calls)
	assert.Equal(t, []string{"Transpiling", "Success", "ProductionBuild"}, f.compiler.LastTrace().Stages)
}

func TestCompileApp_ToolchainUnavailable(t *testing.T) {
	f := newFixture(t)
	f.toolchain = nil
	f.transpile([]string{"index.kt"}, nil)

	res, err := f.compiler.CompileApp(context.Background())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, kotlinc.ErrToolchainUnavailable)

	_, ok, err := f.compiler.Manifest().Read()
	require.NoError(t, err)
	assert.False(t, ok)

	last, ok, err := f.store.LatestCycle()
	require.NoError(t, err)
	require.True(t, ok)
	failure, ok, err := f.store.LoadFailure(last.CycleID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.FailureClassToolchain, failure.FailureClass)
}

func TestCompileApp_ToolchainUnavailableRollsBackInvalidatedFiles(t *testing.T) {
	f := newFixture(t)
	f.transpile([]string{"index.kt", "c.kt"}, nil)
	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	tc := f.toolchain
	f.toolchain = nil
	f.transpile([]string{"c.kt"}, nil)
	res, err := f.compiler.CompileApp(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, kotlinc.ErrToolchainUnavailable)

	l := f.compiler.Layout()
	assert.False(t, exists(t, filepath.Join(l.DexDir(), "c", "classes.dex")))
	m, _, err := f.compiler.Manifest().Read()
	require.NoError(t, err)
	assert.NotContains(t, m, "c.kt")
	assert.Contains(t, m, "index.kt")
	assert.Contains(t, f.compiler.LastTrace().Events, trace.Event{Kind: trace.EventManifestRolledBack, File: "c.kt"})

	// With the toolchain back, the file is compiled again.
	f.toolchain = tc
	f.transpile([]string{"c.kt"}, nil)
	res, err = f.compiler.CompileApp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c.kt"}, f.toolchain.compiled[1])
	assert.Equal(t, []string{"c/classes.dex"}, res.Changed)
}

func TestCompileApp_WritesTraceFile(t *testing.T) {
	f := newFixture(t)
	f.compiler.TraceFile = filepath.Join(t.TempDir(), "trace.json")
	f.transpile([]string{"index.kt"}, nil)

	_, err := f.compiler.CompileApp(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.compiler.TraceFile)
	require.NoError(t, err)
	want, err := f.compiler.LastTrace().CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", string(data))
}
