package cli

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"uvuebuild/internal/watch"
)

func newWatchCommand(env *Env, g *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever project sources change",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(env, g)
			if err != nil {
				return err
			}
			defer s.close()

			cycle := func(ctx context.Context) {
				res, err := s.compiler.CompileApp(ctx)
				if rerr := s.report(res, err); rerr != nil {
					s.log.Errorf("%s", Describe(rerr))
				}
			}
			cycle(cmd.Context())

			var extra []string
			for _, dir := range []string{s.cfg.CacheRoot, s.cfg.OutputDir} {
				if rel, ok := within(s.cfg.InputDir, dir); ok {
					extra = append(extra, "/"+rel+"/")
				}
			}
			w := watch.New(s.cfg.InputDir, extra...)
			w.Interval = interval
			w.Debounce = debounce
			w.Logger = s.log
			s.log.Infof("watching %s", s.cfg.InputDir)
			return w.Run(cmd.Context(), func(ctx context.Context, changed []string) error {
				s.log.Debugf("changed: %s", strings.Join(changed, ", "))
				cycle(ctx)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultInterval, "poll interval")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rebuild")
	return cmd
}

// within reports dir relative to root when dir is strictly inside root.
func within(root, dir string) (string, bool) {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
