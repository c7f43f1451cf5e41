package state

import (
	"errors"
	"fmt"
	"testing"

	"uvuebuild/internal/kotlinc"
	"uvuebuild/internal/transpile"
)

func TestFailureFromError_ClassifiesSyntaxError(t *testing.T) {
	f, err := failureFromError(&transpile.SyntaxError{File: "pages/index.uvue", Line: 3, Message: "unexpected token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassSyntax || f.Retryable || f.File == nil || *f.File != "pages/index.uvue" {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesToolchainUnavailable(t *testing.T) {
	f, err := failureFromError(fmt.Errorf("lookup: %w", kotlinc.ErrToolchainUnavailable))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassToolchain || !f.Retryable {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_ClassifiesCompileFailure(t *testing.T) {
	f, err := failureFromError(&CompileFailureError{Files: []string{"a.kt"}, Code: 1, Message: "unresolved reference"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassCompile || f.Retryable || len(f.Files) != 1 || f.ErrorCode != "CompileFailed(1)" {
		t.Fatalf("unexpected failure: %#v", f)
	}
}

func TestFailureFromError_UnknownIsSystem(t *testing.T) {
	f, err := failureFromError(errors.New("disk full"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.FailureClass != FailureClassSystem || !f.Retryable || f.ErrorMessage != "disk full" {
		t.Fatalf("unexpected failure: %#v", f)
	}
	if _, err := failureFromError(nil); err == nil {
		t.Fatalf("expected error for nil")
	}
}
