// Package logger provides leveled logging for the engine and CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
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
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped lines at or above its level. Loggers derived
// with With share level, output and lock with their parent.
type Logger struct {
	prefix string
	sink   *sink
}

type sink struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
}

var defaultLogger = New(LevelInfo, os.Stdout)

// New creates a new logger with the specified level and output.
func New(level Level, output io.Writer) *Logger {
	return &Logger{sink: &sink{level: level, output: output}}
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return New(LevelError+1, io.Discard)
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output writer for the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// SetLevel changes the level of l and of every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// SetOutput changes the writer of l and of every logger derived from it.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
}

// With returns a logger that tags every line with component.
func (l *Logger) With(component string) *Logger {
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "/" + component
	}
	return &Logger{prefix: prefix, sink: l.sink}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level {
		return
	}
	out := l.sink.output

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05")
	if l.prefix != "" {
		fmt.Fprintf(out, "[%s] %s: [%s] %s\n", timestamp, level.String(), l.prefix, msg)
		return
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", timestamp, level.String(), msg)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Package-level functions that use the default logger

func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
