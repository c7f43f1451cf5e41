package kotlinc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"uvuebuild/internal/core"
	"uvuebuild/internal/logging"
)

// Request is one compile of a change set.
type Request struct {
	Files core.ChangeSet

	// InputDir is the project root, used to find project module jars.
	InputDir string

	// ScratchDir receives the dex artifacts of this compile.
	ScratchDir string
}

// Outcome is the structured result of a compile.
type Outcome struct {
	// OK is false when the toolchain returned a nonzero code or no data.
	OK bool

	Code    int
	Message string

	// DexFiles are the produced artifacts, relative to Request.ScratchDir.
	DexFiles []string

	// Tokens maps each compiled file (source-relative) to its build token.
	// Only set when OK.
	Tokens map[string]string

	Diagnostics []Diagnostic
}

// Driver builds compiler options for a change set, runs the toolchain and
// joins the diagnostics stream before reporting.
type Driver struct {
	Toolchain Toolchain
	Layout    core.Layout

	APILevel        int
	ModulesCacheDir string

	Tokens *TokenHasher
	Logger *logging.Logger

	// Now stamps the compiler module name. Defaults to time.Now.
	Now func() time.Time
}

// Compile runs one compile. A returned error means the toolchain could not
// be invoked; a failed compile is reported through Outcome.OK.
func (d *Driver) Compile(ctx context.Context, req Request) (Outcome, error) {
	if d.Toolchain == nil {
		return Outcome{}, ErrToolchainUnavailable
	}
	if len(req.Files) == 0 {
		return Outcome{}, fmt.Errorf("compile requested with an empty change set")
	}
	if req.ScratchDir == "" {
		return Outcome{}, fmt.Errorf("scratch dir is required")
	}
	for _, dir := range []string{d.Layout.ClassDir(), req.ScratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Outcome{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	tokens, err := d.tokensFor(req.Files)
	if err != nil {
		return Outcome{}, err
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	api := d.APILevel
	if api <= 0 {
		api = DefaultAPILevel
	}
	opts := BuildOptions(BuildRequest{
		Files:           req.Files,
		ClassDir:        d.Layout.ClassDir(),
		DexOutDir:       req.ScratchDir,
		KotlincHome:     d.Toolchain.KotlincHome(),
		DefaultJar:      d.Toolchain.DefaultJar(api),
		APILevel:        api,
		ModulesCacheDir: d.ModulesCacheDir,
		InputDir:        req.InputDir,
		Now:             now(),
	})
	d.Logger.Debugf("kotlinc: module %s, %d files, %d classpath entries", opts.Kotlinc.ModuleName, len(req.Files), len(opts.Kotlinc.Classpath))

	listener := NewListener(d.Layout.SrcDir(), func(diag Diagnostic) {
		if diag.Severity == SeverityError {
			d.Logger.Errorf("%s", diag)
		} else {
			d.Logger.Warnf("%s", diag)
		}
	})
	pr, pw := io.Pipe()
	opts.Stderr = pw

	var g errgroup.Group
	g.Go(func() error {
		err := listener.Consume(pr)
		// Keep draining so a writer is never blocked after a scan error.
		_, _ = io.Copy(io.Discard, pr)
		return err
	})

	resp, compileErr := d.Toolchain.Compile(ctx, opts, d.Layout.CacheRoot)
	_ = pw.Close()

	// Diagnostics may still be draining after Compile returns.
	if err := g.Wait(); err != nil {
		d.Logger.Warnf("kotlinc: reading diagnostics: %v", err)
	}
	<-listener.Done()

	if compileErr != nil {
		return Outcome{}, compileErr
	}

	out := Outcome{
		OK:          resp.Succeeded(),
		Code:        resp.Code,
		Message:     resp.Msg,
		Diagnostics: listener.Diagnostics(),
	}
	if !out.OK {
		if out.Message == "" && resp.Code == 0 {
			out.Message = "compiler returned no artifacts"
		}
		return out, nil
	}
	for _, f := range resp.Data.DexFiles {
		rel, err := artifactRel(f)
		if err != nil {
			return Outcome{}, err
		}
		out.DexFiles = append(out.DexFiles, rel)
	}
	out.Tokens = tokens
	return out, nil
}

func (d *Driver) tokensFor(files core.ChangeSet) (map[string]string, error) {
	hasher := d.Tokens
	if hasher == nil {
		var err error
		if hasher, err = NewTokenHasher(0); err != nil {
			return nil, err
		}
		d.Tokens = hasher
	}
	tokens := make(map[string]string, len(files))
	for _, abs := range files {
		rel, err := d.Layout.RelSource(abs)
		if err != nil {
			return nil, err
		}
		tok, err := hasher.Token(abs)
		if errors.Is(err, os.ErrNotExist) {
			// The toolchain reports the missing source; there is nothing to record.
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens[rel] = tok
	}
	return tokens, nil
}

// artifactRel normalizes a dex path reported by the toolchain. It must stay
// inside the scratch directory it is relative to.
func artifactRel(p string) (string, error) {
	rel := core.NormalizeRel(p)
	if rel == "" || rel == "." || path.IsAbs(rel) || filepath.IsAbs(p) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", ErrArtifactOutsideOutput, p)
	}
	return rel, nil
}
