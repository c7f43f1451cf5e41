// Package cli implements the uvuebuild command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"uvuebuild/internal/config"
	"uvuebuild/internal/transpile"
)

// globalFlags are shared by every command.
type globalFlags struct {
	input    string
	output   string
	cacheDir string
	pkg      string
	mode     string
	logFile  string
	debug    bool
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Overrides{
		InputDir:    g.input,
		OutputDir:   g.output,
		CacheRoot:   g.cacheDir,
		PackageName: g.pkg,
		Mode:        g.mode,
		Debug:       g.debug,
	})
	if err != nil {
		return nil, configError(err)
	}
	if g.logFile != "" {
		cfg.LogFile = g.logFile
	}
	return cfg, nil
}

// NewRootCommand assembles the command tree.
func NewRootCommand(env *Env) *cobra.Command {
	env = env.withDefaults()
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "uvuebuild",
		Short: "Incremental Kotlin/dex builds for uni-app x Android apps",
		Long: `uvuebuild transpiles a uni-app x project to Kotlin and compiles only what
changed to dex, keeping a persistent cache so rebuilds take a fraction of a
full build.

Commands:
  build   - run one compile cycle
  watch   - rebuild whenever sources change
  status  - show the last cycle and the manifest
  clean   - remove the build cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return invalidInvocationf("unknown command %q for \"uvuebuild\"", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return invalidInvocationf("a command is required")
		},
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&g.input, "input", "i", ".", "project root")
	pf.StringVarP(&g.output, "output", "o", "", "output directory (default <input>/unpackage/dist/dev/app-android)")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "persistent cache root (default $"+config.EnvCacheDir+" or <input>/unpackage/cache/.app-android)")
	pf.StringVar(&g.pkg, "package", "", "Kotlin package name of the app")
	pf.StringVar(&g.mode, "mode", "", "build mode: development|production (default $"+config.EnvNodeEnv+")")
	pf.StringVar(&g.logFile, "log-file", "", "also write logs to this rotating file")
	pf.BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(newBuildCommand(env, g))
	root.AddCommand(newWatchCommand(env, g))
	root.AddCommand(newStatusCommand(env, g))
	root.AddCommand(newCleanCommand(env, g))
	return root
}

// Run executes args (without argv[0]) and returns the exit code.
func Run(ctx context.Context, args []string, env *Env) (int, error) {
	root := NewRootCommand(env)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return ExitCode(err), err
}

// Describe renders err for the terminal. Syntax errors include their code
// frame.
func Describe(err error) string {
	var se *transpile.SyntaxError
	if errors.As(err, &se) {
		return se.Report()
	}
	return err.Error()
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("%s takes no arguments, got %q", cmd.CommandPath(), strings.Join(args, " "))
	}
	return nil
}

func absPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return abs, nil
}
