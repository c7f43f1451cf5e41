package state

import (
	"errors"
	"fmt"
	"strings"

	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/transpile"
)

// CompileFailureError describes a toolchain run that finished without
// producing artifacts. The pipeline does not return it; it only hands it to
// the FailureRecorder.
type CompileFailureError struct {
	Files   []string
	Code    int
	Message string
}

func (e *CompileFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != 0 {
		return fmt.Sprintf("compile failure (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("compile failure: %s", e.Message)
}

func failureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var se *transpile.SyntaxError
	if errors.As(err, &se) && se != nil {
		var file *string
		if se.File != "" {
			f := se.File
			file = &f
		}
		return Failure{
			FailureClass: FailureClassSyntax,
			File:         file,
			ErrorCode:    "SyntaxError",
			ErrorMessage: nonEmptyOr(se.Message, se.Error()),
			Retryable:    false,
		}, nil
	}

	if errors.Is(err, kotlinc.ErrToolchainUnavailable) {
		return Failure{
			FailureClass: FailureClassToolchain,
			ErrorCode:    "ToolchainUnavailable",
			ErrorMessage: err.Error(),
			Retryable:    true,
		}, nil
	}

	var cf *CompileFailureError
	if errors.As(err, &cf) && cf != nil {
		return Failure{
			FailureClass: FailureClassCompile,
			Files:        append([]string(nil), cf.Files...),
			ErrorCode:    fmt.Sprintf("CompileFailed(%d)", cf.Code),
			ErrorMessage: nonEmptyOr(strings.TrimSpace(cf.Message), cf.Error()),
			Retryable:    false,
		}, nil
	}

	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
		Retryable:    true,
	}, nil
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
