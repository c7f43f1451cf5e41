package transpile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"uvuebuild/internal/core"
)

// DefaultBinary is the transpiler executable looked up on PATH.
const DefaultBinary = "uts-transpile"

// response is the wire shape printed by the transpiler on stdout.
type response struct {
	Error     *SyntaxError `json:"error,omitempty"`
	Filename  string       `json:"filename,omitempty"`
	Changed   []string     `json:"changed"`
	Chunks    []string     `json:"chunks,omitempty"`
	SourceMap string       `json:"sourceMap,omitempty"`
}

// ExecTranspiler runs the transpiler as a child process: Options as JSON on
// stdin, the result as JSON on stdout. Empty stdout means nothing to build.
type ExecTranspiler struct {
	Binary string
}

// NewExecTranspiler resolves binary (or DefaultBinary) on PATH.
func NewExecTranspiler(binary string) (*ExecTranspiler, error) {
	name := strings.TrimSpace(binary)
	if name == "" {
		name = DefaultBinary
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("transpiler %q not found: %w", name, err)
	}
	return &ExecTranspiler{Binary: bin}, nil
}

func (t *ExecTranspiler) Transpile(ctx context.Context, opts Options) (*core.CompileResult, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding transpile request: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.Binary)
	cmd.Dir = opts.Root
	cmd.Env = os.Environ()
	cmd.Stdin = bytes.NewReader(payload)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The transpiler may still have reported a structured error.
			if res, perr := parseResponse(stdout.Bytes()); perr != nil || res != nil {
				return res, perr
			}
			return nil, fmt.Errorf("%s exited with status %d: %s", filepath.Base(t.Binary), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("running %s: %w", t.Binary, err)
	}
	return parseResponse(stdout.Bytes())
}

func parseResponse(out []byte) (*core.CompileResult, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, nil
	}
	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("decoding transpile response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	changed := resp.Changed
	if changed == nil {
		changed = []string{}
	}
	return &core.CompileResult{
		Filename:  resp.Filename,
		Changed:   changed,
		Chunks:    resp.Chunks,
		SourceMap: resp.SourceMap,
		Type:      core.TargetKotlin,
	}, nil
}
