// Package transpile is the boundary to the UTS-to-Kotlin transpiler.
package transpile

import (
	"context"
	"fmt"
	"strings"

	"uvuebuild/internal/core"
)

// Options is the transpiler request for one build invocation.
type Options struct {
	Root     string `json:"root"`
	Filename string `json:"filename"`

	// Paths are additional module search paths.
	Paths      map[string]string `json:"paths,omitempty"`
	UniModules []string          `json:"uniModules"`

	// Globals are environment variables forwarded from the process.
	Globals map[string]string `json:"globals"`

	Output OutputOptions `json:"output"`
}

// OutputOptions configures the Kotlin target.
type OutputOptions struct {
	PackageName string `json:"package"`
	OutDir      string `json:"outDir"`
	SourceMap   string `json:"sourceMap"`

	// Imports are default imports added to every generated Kotlin file.
	Imports []string `json:"imports,omitempty"`

	// Split enables per-page chunk output (CompileResult.Chunks).
	Split bool `json:"split"`

	// UniExtApiNamespaces maps extension API names to their Kotlin classes.
	UniExtApiNamespaces map[string][2]string `json:"uniExtApiDefaultNamespace,omitempty"`
}

// Transpiler converts the component-language source tree into Kotlin.
//
// A nil result with a nil error means there was nothing to build.
type Transpiler interface {
	Transpile(ctx context.Context, opts Options) (*core.CompileResult, error)
}

// SyntaxError is a transpiler-reported source error with its location
// mapped back to the original source file.
type SyntaxError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`

	// Frame is an optional code frame pointing at the location.
	Frame string `json:"frame,omitempty"`
}

func (e *SyntaxError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString("syntax error: ")
	b.WriteString(e.Message)
	return b.String()
}

// Report renders the error with its code frame for the developer.
func (e *SyntaxError) Report() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Frame) == "" {
		return e.Error()
	}
	return e.Error() + "\n" + strings.TrimRight(e.Frame, "\n")
}
