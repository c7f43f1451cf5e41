// Package kotlinc wraps the external Kotlin/dex compiler toolchain behind a
// request/response contract and drives one compile per development cycle.
package kotlinc

import (
	"context"
	"errors"
	"io"
)

// ErrToolchainUnavailable means the native compiler integration is not
// installed. It is fatal for a development cycle.
var ErrToolchainUnavailable = errors.New("kotlin compiler toolchain is not installed")

// ErrArtifactOutsideOutput means the toolchain reported a dex path that is
// absolute or escapes the directory it was asked to write into.
var ErrArtifactOutsideOutput = errors.New("toolchain reported an artifact outside the output directory")

// Toolchain is the compiler service the driver talks to.
type Toolchain interface {
	// DefaultJar returns the platform jar for the Android API level.
	DefaultJar(apiLevel int) string

	// KotlincHome returns the Kotlin compiler installation directory.
	KotlincHome() string

	// Compile runs kotlinc then d8. A non-nil error means the toolchain could
	// not be run at all; compile failures are reported through Response.
	Compile(ctx context.Context, opts Options, workDir string) (Response, error)
}

// Options is the full compile request.
type Options struct {
	Kotlinc KotlincOptions `json:"kotlinc"`
	D8      D8Options      `json:"d8"`

	// Stderr receives the toolchain's diagnostic stream. The driver attaches
	// a Listener here.
	Stderr io.Writer `json:"-"`
}

// KotlincOptions configures the Kotlin-to-JVM step.
type KotlincOptions struct {
	Args        []string `json:"args"`
	Files       []string `json:"files"`
	Classpath   []string `json:"classpath"`
	OutDir      string   `json:"outDir"`
	KotlincHome string   `json:"kotlincHome"`
	ModuleName  string   `json:"moduleName"`
}

// D8Options configures the JVM-to-dex step.
type D8Options struct {
	Args     []string `json:"args"`
	ClassDir string   `json:"classDir"`
	OutDir   string   `json:"outDir"`
}

// Response is the toolchain's answer. Code 0 with Data present is success.
type Response struct {
	Code int           `json:"code"`
	Msg  string        `json:"msg,omitempty"`
	Data *ResponseData `json:"data,omitempty"`
}

// ResponseData carries the dex artifacts produced by a successful compile,
// relative to D8Options.OutDir.
type ResponseData struct {
	DexFiles []string `json:"dexFiles"`
}

// Succeeded reports whether the response counts as a successful compile.
func (r Response) Succeeded() bool {
	return r.Code == 0 && r.Data != nil
}
