package cli

import (
	"fmt"
	"io"

	"uvuebuild/internal/config"
	"uvuebuild/internal/core"
	"uvuebuild/internal/logging"
	"uvuebuild/internal/pipeline"
	"uvuebuild/internal/recovery/state"
)

// session is a configured compiler plus the logger it writes to.
type session struct {
	cfg      *config.Config
	log      *logging.Logger
	compiler *pipeline.Compiler
	out      io.Writer
}

func newSession(env *Env, g *globalFlags) (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Options{File: cfg.LogFile, Debug: cfg.Debug, Console: env.Stderr})

	tr, err := env.Transpiler(cfg)
	if err != nil {
		_ = log.Close()
		return nil, configError(err)
	}
	store, err := state.NewStore(cfg.CacheRoot)
	if err != nil {
		_ = log.Close()
		return nil, configError(err)
	}
	compiler, err := pipeline.New(cfg, pipeline.Deps{
		Transpiler: tr,
		Toolchain:  env.Toolchain(cfg),
		Logger:     log,
		Recorder:   state.NewFailureRecorder(store),
	})
	if err != nil {
		_ = log.Close()
		return nil, configError(err)
	}
	log.Debugf("input %s, cache %s, output %s, mode %s", cfg.InputDir, cfg.CacheRoot, cfg.OutputDir, cfg.Mode)
	return &session{cfg: cfg, log: log, compiler: compiler, out: env.Stdout}, nil
}

func (s *session) close() { _ = s.log.Close() }

// report prints the outcome of a cycle and turns a compile failure into
// ErrBuildFailed.
func (s *session) report(res *core.CompileResult, err error) error {
	if err != nil {
		return err
	}
	switch {
	case res == nil:
		fmt.Fprintln(s.out, "nothing to build")
	case s.compiler.LastStage() == pipeline.StageDexFailure:
		return fmt.Errorf("%w: the compiler rejected the sources", ErrBuildFailed)
	case s.compiler.LastStage() == pipeline.StageProductionBuild:
		fmt.Fprintf(s.out, "transpiled %d file(s) for production\n", len(res.Changed))
	case !res.Kotlinc:
		fmt.Fprintln(s.out, "up to date")
	default:
		fmt.Fprintf(s.out, "%d artifact(s) written to %s\n", len(res.Changed), s.cfg.OutputDir)
	}
	return nil
}
