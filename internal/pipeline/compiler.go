package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"uvuebuild/internal/changeset"
	"uvuebuild/internal/config"
	"uvuebuild/internal/core"
	"uvuebuild/internal/dexcache"
	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/logging"
	"uvuebuild/internal/manifest"
	"uvuebuild/internal/recovery/state"
	"uvuebuild/internal/trace"
	"uvuebuild/internal/transpile"
)

// ToolchainLookup resolves the compiler toolchain. It is called once per
// cycle that has something to compile.
type ToolchainLookup func() (kotlinc.Toolchain, error)

// Deps are the collaborators of a Compiler.
type Deps struct {
	Transpiler transpile.Transpiler
	Toolchain  ToolchainLookup

	// Optional.
	Logger   *logging.Logger
	Trace    trace.Sink
	Recorder *state.FailureRecorder
}

// Compiler runs compile cycles for one project.
type Compiler struct {
	cfg  *config.Config
	deps Deps

	layout   core.Layout
	mirror   *dexcache.Mirror
	resolver *changeset.Resolver
	manifest *manifest.Store
	tokens   *kotlinc.TokenHasher

	// TraceFile, when set, receives the canonical trace of every cycle.
	TraceFile string

	mu        sync.Mutex
	current   *state.Cycle
	lastTrace trace.CycleTrace
}

// New wires a Compiler for cfg.
func New(cfg *config.Config, deps Deps) (*Compiler, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Transpiler == nil {
		return nil, errors.New("transpiler is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Trace == nil {
		deps.Trace = trace.NopSink{}
	}
	layout, err := core.NewLayout(cfg.CacheRoot, cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	tokens, err := kotlinc.NewTokenHasher(0)
	if err != nil {
		return nil, err
	}
	mirror := dexcache.NewMirror(layout)
	return &Compiler{
		cfg:      cfg,
		deps:     deps,
		layout:   layout,
		mirror:   mirror,
		resolver: changeset.NewResolver(layout, mirror),
		manifest: manifest.NewStore(layout.SrcDir()),
		tokens:   tokens,
	}, nil
}

// Layout returns the cache layout the compiler works in.
func (c *Compiler) Layout() core.Layout { return c.layout }

// Manifest returns the manifest store.
func (c *Compiler) Manifest() *manifest.Store { return c.manifest }

// LastTrace returns the trace of the most recent cycle.
func (c *Compiler) LastTrace() trace.CycleTrace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTrace
}

// LastStage returns the stage the most recent cycle ended in, or StageIdle
// before the first cycle.
func (c *Compiler) LastStage() Stage {
	tr := c.LastTrace()
	if len(tr.Stages) == 0 {
		return StageIdle
	}
	return Stage(tr.Stages[len(tr.Stages)-1])
}

// cycle tracks one CompileApp invocation.
type cycle struct {
	stage  Stage
	stages []string
	key    string
	rec    *trace.Recorder
	sink   trace.Sink
}

func (cy *cycle) enter(to Stage) error {
	if err := Transition(cy.stage, to); err != nil {
		return err
	}
	cy.stage = to
	cy.stages = append(cy.stages, string(to))
	cy.record(trace.Event{Kind: trace.EventStage, Stage: string(to)})
	return nil
}

func (cy *cycle) record(e trace.Event) {
	trace.SafeRecord(cy.rec, e)
	trace.SafeRecord(cy.sink, e)
}

// CompileApp runs one cycle.
//
// A nil result with a nil error means the transpiler had nothing to build.
// A compile failure is not an error: the result comes back with Kotlinc set
// and an empty Changed list, and the failure is logged.
func (c *Compiler) CompileApp(ctx context.Context) (*core.CompileResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cy := &cycle{
		stage: StageIdle,
		key:   trace.CycleKey(nil, nil),
		rec:   trace.NewRecorder(),
		sink:  c.deps.Trace,
	}
	c.startRecord()
	result, compiled, status, err := c.run(ctx, cy)
	c.finish(cy, result, compiled, status, err)
	return result, err
}

func (c *Compiler) run(ctx context.Context, cy *cycle) (*core.CompileResult, []string, state.CycleStatus, error) {
	log := c.deps.Logger

	if err := cy.enter(StageTranspiling); err != nil {
		return nil, nil, state.CycleStatusFailed, err
	}
	start := time.Now()
	transpiled, err := c.deps.Transpiler.Transpile(ctx, c.transpileOptions())
	if err != nil {
		var se *transpile.SyntaxError
		if errors.As(err, &se) {
			if serr := cy.enter(StageSyntaxError); serr != nil {
				return nil, nil, state.CycleStatusFailed, serr
			}
			log.Debugf("transpile: %v", se)
			return nil, nil, state.CycleStatusFailed, se
		}
		return nil, nil, state.CycleStatusFailed, fmt.Errorf("transpile: %w", err)
	}
	if err := cy.enter(StageSuccess); err != nil {
		return nil, nil, state.CycleStatusFailed, err
	}
	if transpiled == nil {
		log.Debugf("transpiler reported nothing to build")
		return nil, nil, state.CycleStatusSkipped, nil
	}
	cy.key = trace.CycleKey(transpiled.Changed, transpiled.Chunks)
	result := transpiled.WithKotlinc(false)
	log.Debugf("transpiled in %s: %d changed, %d chunks", time.Since(start).Round(time.Millisecond), len(result.Changed), len(result.Chunks))

	if c.cfg.Production() {
		if err := cy.enter(StageProductionBuild); err != nil {
			return nil, nil, state.CycleStatusFailed, err
		}
		log.Warnf("production builds are not handled by the incremental pipeline; returning transpiler output unchanged")
		return &result, nil, state.CycleStatusSkipped, nil
	}
	return c.developmentCycle(ctx, cy, result)
}

func (c *Compiler) developmentCycle(ctx context.Context, cy *cycle, result core.CompileResult) (*core.CompileResult, []string, state.CycleStatus, error) {
	log := c.deps.Logger

	if err := cy.enter(StageDevelopmentCycle); err != nil {
		return nil, nil, state.CycleStatusFailed, err
	}
	res, err := c.resolver.Resolve(result)
	if err != nil {
		return nil, nil, state.CycleStatusFailed, fmt.Errorf("resolve change set: %w", err)
	}
	for _, f := range res.Invalidated {
		cy.record(trace.Event{Kind: trace.EventFileInvalidated, File: f, Reason: "Changed"})
	}
	for _, f := range res.Promoted {
		cy.record(trace.Event{Kind: trace.EventArtifactPromoted, File: f, Reason: "Cached"})
	}

	entry := core.NormalizeRel(c.resolver.EntryFile)
	entryExists, err := fileExists(c.layout.SourcePath(entry))
	if err != nil {
		return nil, nil, state.CycleStatusFailed, err
	}
	if !entryExists {
		// Nothing to compile for an entry the transpiler has not generated.
		var dropped bool
		if res, dropped = withoutFile(res, entry); dropped {
			log.Debugf("entry %s has not been generated yet; not compiling it", entry)
			if _, err := c.rollback(cy, []string{entry}); err != nil {
				return nil, nil, state.CycleStatusFailed, fmt.Errorf("manifest rollback: %w", err)
			}
		}
	}
	if res.Files.Empty() {
		if err := cy.enter(StageNoChangesNeeded); err != nil {
			return nil, nil, state.CycleStatusFailed, err
		}
		log.Debugf("dex cache is up to date")
		out := result.WithChanged(nil)
		return &out, nil, state.CycleStatusNoChanges, nil
	}

	tc, err := c.lookupToolchain()
	if err != nil {
		// Stale artifacts are already gone; their entries must go too.
		if _, rbErr := c.rollback(cy, res.Invalidated); rbErr != nil {
			log.Warnf("manifest rollback: %v", rbErr)
		}
		return nil, res.Relative, state.CycleStatusFailed, err
	}

	if err := cy.enter(StageCompiling); err != nil {
		return nil, res.Relative, state.CycleStatusFailed, err
	}
	for _, f := range res.Relative {
		cy.record(trace.Event{Kind: trace.EventFileCompiled, File: f})
	}
	log.Infof("compiling %d kotlin file(s)", len(res.Files))

	if err := os.MkdirAll(c.layout.CacheRoot, 0o755); err != nil {
		return nil, res.Relative, state.CycleStatusFailed, err
	}
	scratch, err := os.MkdirTemp(c.layout.CacheRoot, ".dex-")
	if err != nil {
		return nil, res.Relative, state.CycleStatusFailed, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	driver := &kotlinc.Driver{
		Toolchain:       tc,
		Layout:          c.layout,
		APILevel:        c.cfg.AndroidAPI,
		ModulesCacheDir: c.cfg.ModulesCacheDir,
		Tokens:          c.tokens,
		Logger:          log,
	}
	start := time.Now()
	outcome, err := driver.Compile(ctx, kotlinc.Request{
		Files:      res.Files,
		InputDir:   c.cfg.InputDir,
		ScratchDir: scratch,
	})
	result = result.WithKotlinc(true)
	if err != nil {
		// The files were mid-compile; their entries must not survive.
		if _, rbErr := c.rollback(cy, res.Relative); rbErr != nil {
			log.Warnf("manifest rollback: %v", rbErr)
		}
		return nil, res.Relative, state.CycleStatusFailed, err
	}

	if !outcome.OK {
		if err := cy.enter(StageDexFailure); err != nil {
			return nil, res.Relative, state.CycleStatusFailed, err
		}
		if _, err := c.rollback(cy, res.Relative); err != nil {
			return nil, res.Relative, state.CycleStatusFailed, fmt.Errorf("manifest rollback: %w", err)
		}
		if outcome.Message != "" {
			log.Errorf("%s", outcome.Message)
		}
		c.recordFailure(&state.CompileFailureError{Files: res.Relative, Code: outcome.Code, Message: outcome.Message})
		out := result.WithChanged(nil)
		return &out, res.Relative, state.CycleStatusFailed, nil
	}

	if err := cy.enter(StageDexSuccess); err != nil {
		return nil, res.Relative, state.CycleStatusFailed, err
	}
	for _, dex := range outcome.DexFiles {
		if err := c.mirror.Import(scratch, dex); err != nil {
			return nil, res.Relative, state.CycleStatusFailed, fmt.Errorf("sync %s: %w", dex, err)
		}
		cy.record(trace.Event{Kind: trace.EventArtifactSynced, File: dex})
	}
	before, err := c.manifest.Record(outcome.Tokens)
	if err != nil {
		return nil, res.Relative, state.CycleStatusFailed, fmt.Errorf("record manifest: %w", err)
	}
	if diff := manifest.Diff(before, merged(before, outcome.Tokens)); diff != "" {
		log.Debugf("manifest:\n%s", diff)
	}
	log.Infof("dex ready in %s: %d artifact(s)", time.Since(start).Round(time.Millisecond), len(outcome.DexFiles))

	out := result.WithChanged(outcome.DexFiles)
	return &out, res.Relative, state.CycleStatusSucceeded, nil
}

func (c *Compiler) lookupToolchain() (kotlinc.Toolchain, error) {
	if c.deps.Toolchain == nil {
		return nil, fmt.Errorf("%w: no toolchain configured", kotlinc.ErrToolchainUnavailable)
	}
	tc, err := c.deps.Toolchain()
	if err == nil && tc == nil {
		err = kotlinc.ErrToolchainUnavailable
	}
	return tc, err
}

// withoutFile removes rel from the change set.
func withoutFile(res changeset.Resolution, rel string) (changeset.Resolution, bool) {
	out := res
	out.Files, out.Relative = nil, nil
	dropped := false
	for i, r := range res.Relative {
		if r == rel {
			dropped = true
			continue
		}
		out.Files = append(out.Files, res.Files[i])
		out.Relative = append(out.Relative, r)
	}
	return out, dropped
}

func (c *Compiler) rollback(cy *cycle, files []string) ([]string, error) {
	removed, err := c.manifest.Rollback(files)
	if err != nil {
		return nil, err
	}
	for _, f := range removed {
		cy.record(trace.Event{Kind: trace.EventManifestRolledBack, File: f})
	}
	return removed, nil
}

// DefaultImports are added to every generated Kotlin file.
var DefaultImports = []string{
	"kotlinx.coroutines.async",
	"kotlinx.coroutines.CoroutineScope",
	"kotlinx.coroutines.Deferred",
	"kotlinx.coroutines.Dispatchers",
	"io.dcloud.uts.Map",
	"io.dcloud.uts.Set",
	"io.dcloud.uts.UTSAndroid",
}

func (c *Compiler) transpileOptions() transpile.Options {
	return transpile.Options{
		Root:       c.cfg.InputDir,
		Filename:   c.cfg.EntryFile,
		UniModules: uniModules(c.cfg.InputDir),
		Globals:    c.cfg.Globals,
		Output: transpile.OutputOptions{
			PackageName: c.cfg.PackageName,
			OutDir:      c.layout.SrcDir(),
			SourceMap:   filepath.Join(c.layout.CacheRoot, "sourcemap"),
			Imports:     DefaultImports,
			Split:       true,
		},
	}
}

// uniModules lists the project's uni_modules by directory name.
func uniModules(inputDir string) []string {
	entries, err := os.ReadDir(filepath.Join(inputDir, "uni_modules"))
	if err != nil {
		return []string{}
	}
	mods := []string{}
	for _, e := range entries {
		if e.IsDir() {
			mods = append(mods, e.Name())
		}
	}
	sort.Strings(mods)
	return mods
}

func merged(before manifest.Manifest, tokens map[string]string) manifest.Manifest {
	after := before.Clone()
	for k, v := range tokens {
		after[core.NormalizeRel(k)] = v
	}
	return after
}

func fileExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
