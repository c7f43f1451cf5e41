// Package watch polls a project tree and triggers a rebuild when sources
// change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"uvuebuild/internal/logging"
)

const (
	DefaultInterval = 300 * time.Millisecond
	DefaultDebounce = 200 * time.Millisecond
)

// stamp is what a poll compares for each file.
type stamp struct {
	size    int64
	modTime time.Time
}

// Snapshot maps slash-separated root-relative paths to their stamps.
type Snapshot map[string]stamp

// Watcher polls Root every Interval. Changes are batched until the tree has
// been quiet for Debounce, then handed to the callback. The callback runs on
// the watcher's goroutine, so cycles never overlap.
type Watcher struct {
	Root     string
	Interval time.Duration
	Debounce time.Duration
	Ignore   *ignore.GitIgnore
	Logger   *logging.Logger
}

// New returns a Watcher for root using its .gitignore plus extra patterns.
func New(root string, extra ...string) *Watcher {
	return &Watcher{
		Root:     root,
		Interval: DefaultInterval,
		Debounce: DefaultDebounce,
		Ignore:   IgnoreRules(root, extra...),
		Logger:   logging.Discard(),
	}
}

func (w *Watcher) ignored(rel string, dir bool) bool {
	if w.Ignore == nil {
		return false
	}
	if dir {
		return w.Ignore.MatchesPath(rel + "/")
	}
	return w.Ignore.MatchesPath(rel)
}

// Snapshot walks Root, skipping ignored paths.
func (w *Watcher) Snapshot() (Snapshot, error) {
	snap := Snapshot{}
	err := filepath.WalkDir(w.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files can vanish between readdir and stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(w.Root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		snap[rel] = stamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return snap, err
}

// Diff returns the sorted paths added, removed or modified between prev and
// next.
func Diff(prev, next Snapshot) []string {
	var changed []string
	for p, s := range next {
		if old, ok := prev[p]; !ok || old.size != s.size || !old.modTime.Equal(s.modTime) {
			changed = append(changed, p)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// Run polls until ctx is done. A callback error is logged and watching
// continues. Run returns nil on cancellation and an error only if the
// initial snapshot fails.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string) error) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	debounce := w.Debounce
	if debounce < 0 {
		debounce = 0
	}

	prev, err := w.Snapshot()
	if err != nil {
		return err
	}
	w.Logger.Debugf("watch: %d files under %s", len(prev), w.Root)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := map[string]struct{}{}
	var lastChange time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := w.Snapshot()
		if err != nil {
			w.Logger.Warnf("watch: scan: %v", err)
			continue
		}
		if changed := Diff(prev, next); len(changed) > 0 {
			for _, p := range changed {
				pending[p] = struct{}{}
			}
			prev = next
			lastChange = time.Now()
			continue
		}
		if len(pending) == 0 || time.Since(lastChange) < debounce {
			continue
		}

		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		sort.Strings(batch)
		pending = map[string]struct{}{}

		w.Logger.Infof("watch: %d file(s) changed", len(batch))
		if err := onChange(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Logger.Errorf("watch: %v", err)
		}
	}
}
