package kotlinc

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Severity of a compiler diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one located compiler message.
type Diagnostic struct {
	Severity Severity `json:"severity"`

	// File is relative to the Kotlin source dir when the reported path lies
	// inside it, otherwise as reported.
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

var (
	// e: file:///abs/pages/index.kt:12:5 Unresolved reference: foo
	reLocated = regexp.MustCompile(`^(e|w|i|error|warning|info): (?:file://)?(.+?\.kts?):(\d+):(\d+):? (.*)$`)
	// e: /abs/pages/index.kt: (12, 5): Unresolved reference: foo
	reLegacy = regexp.MustCompile(`^(e|w|i|error|warning|info): (.+?\.kts?): \((\d+), (\d+)\): (.*)$`)
)

// Listener parses the toolchain's stderr into diagnostics. Consume runs on
// its own goroutine; Done is closed once the stream has been drained.
type Listener struct {
	srcDir string
	onDiag func(Diagnostic)

	mu    sync.Mutex
	diags []Diagnostic
	other []string

	done chan struct{}
	once sync.Once
}

// NewListener returns a Listener resolving paths against srcDir. onDiag, if
// set, is called for each diagnostic as it is parsed.
func NewListener(srcDir string, onDiag func(Diagnostic)) *Listener {
	return &Listener{srcDir: srcDir, onDiag: onDiag, done: make(chan struct{})}
}

// Consume reads r to EOF. Lines that carry no location are kept verbatim
// and returned by Output.
func (l *Listener) Consume(r io.Reader) error {
	defer l.once.Do(func() { close(l.done) })

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		d, ok := l.parse(line)
		l.mu.Lock()
		if ok {
			l.diags = append(l.diags, d)
		} else {
			l.other = append(l.other, line)
		}
		l.mu.Unlock()
		if ok && l.onDiag != nil {
			l.onDiag(d)
		}
	}
	return sc.Err()
}

// Done is closed when Consume returns.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Diagnostics returns the parsed diagnostics in stream order.
func (l *Listener) Diagnostics() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.diags...)
}

// Errors returns only error-severity diagnostics.
func (l *Listener) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range l.Diagnostics() {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Output returns the unparsed stderr lines.
func (l *Listener) Output() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.other...)
}

func (l *Listener) parse(line string) (Diagnostic, bool) {
	m := reLocated.FindStringSubmatch(line)
	if m == nil {
		m = reLegacy.FindStringSubmatch(line)
	}
	if m == nil {
		return Diagnostic{}, false
	}
	ln, _ := strconv.Atoi(m[3])
	col, _ := strconv.Atoi(m[4])
	return Diagnostic{
		Severity: severityOf(m[1]),
		File:     l.relative(m[2]),
		Line:     ln,
		Column:   col,
		Message:  strings.TrimSpace(m[5]),
	}, true
}

func (l *Listener) relative(p string) string {
	if l.srcDir == "" || !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(l.srcDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func severityOf(tag string) Severity {
	switch tag {
	case "e", "error":
		return SeverityError
	case "w", "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
