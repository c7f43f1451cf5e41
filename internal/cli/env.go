package cli

import (
	"io"
	"os"

	"uvuebuild/internal/config"
	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/pipeline"
	"uvuebuild/internal/transpile"
)

// Env holds the process boundary of the CLI so tests can swap it.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Transpiler builds the transpiler for a config.
	Transpiler func(cfg *config.Config) (transpile.Transpiler, error)

	// Toolchain returns the toolchain lookup for a config.
	Toolchain func(cfg *config.Config) pipeline.ToolchainLookup
}

// DefaultEnv runs the external transpiler and toolchain binaries.
func DefaultEnv() *Env {
	return &Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Transpiler: func(cfg *config.Config) (transpile.Transpiler, error) {
			t, err := transpile.NewExecTranspiler(cfg.TranspilerBin)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		Toolchain: func(cfg *config.Config) pipeline.ToolchainLookup {
			return func() (kotlinc.Toolchain, error) {
				tc, err := kotlinc.Lookup(kotlinc.LookupConfig{
					Binary:      cfg.ToolchainBin,
					KotlincHome: cfg.KotlinHome,
					AndroidSDK:  cfg.AndroidSDK,
				})
				if err != nil {
					return nil, err
				}
				return tc, nil
			}
		},
	}
}

func (e *Env) withDefaults() *Env {
	d := DefaultEnv()
	if e == nil {
		return d
	}
	out := *e
	if out.Stdout == nil {
		out.Stdout = d.Stdout
	}
	if out.Stderr == nil {
		out.Stderr = d.Stderr
	}
	if out.Transpiler == nil {
		out.Transpiler = d.Transpiler
	}
	if out.Toolchain == nil {
		out.Toolchain = d.Toolchain
	}
	return &out
}
