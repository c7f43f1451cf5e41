package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"uvuebuild/internal/core"
	"uvuebuild/internal/manifest"
	"uvuebuild/internal/recovery/state"
)

func newStatusCommand(env *Env, g *globalFlags) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last compile cycle and the manifest",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			store, err := state.NewStore(cfg.CacheRoot)
			if err != nil {
				return configError(err)
			}
			sum, err := state.Summarize(store)
			if err != nil {
				return err
			}
			if _, err := sum.WriteTo(out); err != nil {
				return err
			}

			layout, err := core.NewLayout(cfg.CacheRoot, cfg.OutputDir)
			if err != nil {
				return configError(err)
			}
			ms := manifest.NewStore(layout.SrcDir())
			m, ok, err := ms.Read()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "manifest:    none")
			} else {
				fmt.Fprintf(out, "manifest:    %d file(s)\n", len(m))
			}
			if !showDiff {
				return nil
			}
			prev, _, err := ms.Previous()
			if err != nil {
				return err
			}
			if d := manifest.Diff(prev, m); d != "" {
				fmt.Fprint(out, d)
			} else {
				fmt.Fprintln(out, "manifest unchanged since the previous build")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "show the manifest diff against the previous build")
	return cmd
}
