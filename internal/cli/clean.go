package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCleanCommand(env *Env, g *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the build cache",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			targets := []string{cfg.CacheRoot}
			if all {
				targets = append(targets, cfg.OutputDir)
			}
			for _, dir := range targets {
				if err := checkRemovable(cfg.InputDir, dir); err != nil {
					return err
				}
			}
			for _, dir := range targets {
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("removing %s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also remove the output directory")
	return cmd
}

// checkRemovable refuses filesystem roots and anything containing the
// project itself.
func checkRemovable(inputDir, dir string) error {
	dir = filepath.Clean(dir)
	if dir == filepath.Dir(dir) {
		return invalidInvocationf("refusing to remove filesystem root %s", dir)
	}
	if _, inside := within(dir, inputDir); inside || dir == filepath.Clean(inputDir) {
		return invalidInvocationf("refusing to remove %s: it contains the project", dir)
	}
	return nil
}
