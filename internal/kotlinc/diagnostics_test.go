package kotlinc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_ParsesKotlincFormats(t *testing.T) {
	var seen []Diagnostic
	l := NewListener("/cache/src", func(d Diagnostic) { seen = append(seen, d) })

	stderr := strings.Join([]string{
		"e: file:///cache/src/pages/index.kt:12:5 Unresolved reference: foo",
		"w: /cache/src/a.kt: (3, 1): Parameter 'x' is never used",
		"warning: unable to find kotlin-stdlib.jar in the Kotlin home directory",
		"",
		"e: /elsewhere/lib.kt:1:1 Type mismatch",
	}, "\n")

	require.NoError(t, l.Consume(strings.NewReader(stderr)))

	select {
	case <-l.Done():
	default:
		t.Fatal("Done must be closed after Consume returns")
	}

	diags := l.Diagnostics()
	require.Len(t, diags, 3)
	assert.Equal(t, Diagnostic{Severity: SeverityError, File: "pages/index.kt", Line: 12, Column: 5, Message: "Unresolved reference: foo"}, diags[0])
	assert.Equal(t, Diagnostic{Severity: SeverityWarning, File: "a.kt", Line: 3, Column: 1, Message: "Parameter 'x' is never used"}, diags[1])
	assert.Equal(t, "/elsewhere/lib.kt", diags[2].File)

	assert.Equal(t, diags, seen)
	assert.Len(t, l.Errors(), 2)
	assert.Equal(t, []string{"warning: unable to find kotlin-stdlib.jar in the Kotlin home directory"}, l.Output())
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Severity: SeverityError, File: "a.kt", Line: 2, Column: 3, Message: "boom"}
	assert.Equal(t, "a.kt:2:3: error: boom", d.String())
}
