package cli

import (
	"github.com/spf13/cobra"
)

func newBuildCommand(env *Env, g *globalFlags) *cobra.Command {
	var tracePath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run one compile cycle",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(env, g)
			if err != nil {
				return err
			}
			defer s.close()

			if s.compiler.TraceFile, err = absPath(tracePath); err != nil {
				return invalidInvocationf("--trace: %v", err)
			}
			res, err := s.compiler.CompileApp(cmd.Context())
			return s.report(res, err)
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "", "write the cycle trace as canonical JSON to this file")
	return cmd
}
