package kotlinc

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
)

// DefaultBinary is the compile service executable looked up on PATH.
const DefaultBinary = "uts-kotlinc"

// LookupConfig locates the toolchain installation.
type LookupConfig struct {
	// Binary is a path or a name resolved via PATH. Defaults to DefaultBinary.
	Binary string

	// KotlincHome overrides the Kotlin installation. Defaults to
	// <binary dir>/../kotlinc.
	KotlincHome string

	// AndroidSDK is the SDK root holding platforms/android-<api>/android.jar.
	AndroidSDK string
}

// Lookup resolves the toolchain. When the compile service is missing it
// returns an error wrapping ErrToolchainUnavailable.
func Lookup(cfg LookupConfig) (*ExecToolchain, error) {
	name := strings.TrimSpace(cfg.Binary)
	if name == "" {
		name = DefaultBinary
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not found (install the app-x Android compiler extension or set UVUEBUILD_TOOLCHAIN)", ErrToolchainUnavailable, name)
	}
	home := strings.TrimSpace(cfg.KotlincHome)
	if home == "" {
		home = filepath.Join(filepath.Dir(bin), "..", "kotlinc")
	}
	return &ExecToolchain{
		Binary:     bin,
		Home:       filepath.Clean(home),
		AndroidSDK: cfg.AndroidSDK,
	}, nil
}

// ExecToolchain runs the compile service as a child process. The request is
// written as JSON to stdin, the Response is read as JSON from stdout, and
// stderr is streamed to Options.Stderr.
type ExecToolchain struct {
	Binary     string
	Home       string
	AndroidSDK string
}

func (t *ExecToolchain) DefaultJar(apiLevel int) string {
	return filepath.Join(t.AndroidSDK, "platforms", fmt.Sprintf("android-%d", apiLevel), "android.jar")
}

func (t *ExecToolchain) KotlincHome() string { return t.Home }

func (t *ExecToolchain) Compile(ctx context.Context, opts Options, workDir string) (Response, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return Response{}, fmt.Errorf("encoding compile request: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.Binary, "compile")
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "KOTLIN_HOME="+t.Home)
	cmd.Stdin = bytes.NewReader(payload)

	// Process group so cancellation reaches the JVM children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}

	if err := cmd.Start(); err != nil {
		return Response{}, fmt.Errorf("failed to start %s: %w", t.Binary, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return Response{}, fmt.Errorf("compile cancelled: %w", ctx.Err())
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Response{}, fmt.Errorf("failed to run %s: %w", t.Binary, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		if exitCode == 0 {
			return Response{Code: 0}, nil
		}
		return Response{Code: exitCode, Msg: fmt.Sprintf("%s exited with status %d", filepath.Base(t.Binary), exitCode)}, nil
	}

	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding compile response: %w", err)
	}
	if exitCode != 0 && resp.Code == 0 {
		resp.Code = exitCode
	}
	return resp, nil
}
