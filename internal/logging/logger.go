// Package logging provides the leveled build logger. Messages go to stderr
// and, when a log file is configured, to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

var levelColors = map[Level]string{
	LevelDebug: "\x1b[90m",
	LevelInfo:  "\x1b[36m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
}

// Options configures a Logger.
type Options struct {
	// File enables a rotating log file when non-empty.
	File string

	// Debug lowers the console threshold to LevelDebug.
	Debug bool

	// Console defaults to os.Stderr.
	Console io.Writer
}

// Logger writes leveled messages. A nil *Logger discards everything.
type Logger struct {
	mu       sync.Mutex
	console  *log.Logger
	file     *log.Logger
	rotator  *lumberjack.Logger
	minLevel Level
	color    bool
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	console := opts.Console
	color := false
	if console == nil {
		console = os.Stderr
		color = term.IsTerminal(int(os.Stderr.Fd()))
	}
	l := &Logger{
		console:  log.New(console, "", 0),
		minLevel: LevelInfo,
		color:    color,
	}
	if opts.Debug {
		l.minLevel = LevelDebug
	}
	if opts.File != "" {
		l.rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		l.file = log.New(l.rotator, "", log.LstdFlags)
	}
	return l
}

// Discard returns a Logger that drops every message.
func Discard() *Logger {
	return &Logger{console: log.New(io.Discard, "", 0), minLevel: LevelError + 1}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger, writing to stderr only.
// Init replaces it.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(Options{})
		}
	})
	return defaultLogger
}

// Init installs the process-wide logger. It must be called before Default
// to take effect.
func Init(opts Options) *Logger {
	once.Do(func() {
		defaultLogger = New(opts)
	})
	return defaultLogger
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l == nil || l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	// The file always receives debug output.
	if l.file != nil {
		l.file.Printf("[%s] %s", level, msg)
	}
	if level < l.minLevel {
		return
	}
	tag := "[" + level.String() + "]"
	if l.color {
		tag = levelColors[level] + tag + "\x1b[0m"
	}
	l.console.Printf("%s %s", tag, msg)
}
