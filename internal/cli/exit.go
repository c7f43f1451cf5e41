package cli

import (
	"errors"
	"fmt"

	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/transpile"
)

const (
	ExitSuccess           = 0
	ExitBuildFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError carries an explicit exit code.
type InvocationError struct {
	ExitCode int
	Message  string
	Cause    error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *InvocationError) Unwrap() error { return e.Cause }

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func configError(err error) error {
	if err == nil {
		return nil
	}
	return &InvocationError{ExitCode: ExitConfigError, Message: err.Error(), Cause: err}
}

// ErrBuildFailed reports a cycle that ran but produced no artifacts because
// the compiler rejected the sources.
var ErrBuildFailed = errors.New("build failed")

// ExitCode maps an error from a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var se *transpile.SyntaxError
	if errors.As(err, &se) || errors.Is(err, ErrBuildFailed) {
		return ExitBuildFailure
	}
	if errors.Is(err, kotlinc.ErrToolchainUnavailable) {
		return ExitConfigError
	}
	return ExitInternalError
}
