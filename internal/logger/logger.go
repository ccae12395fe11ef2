// Package logger provides the structured logger every pipeline stage writes to.
//
// It is a thin layer over log/slog: callers receive a Logger, derive
// module-scoped children with Module, and attach typed fields. Output goes
// to the console and, optionally, to an append-mode log file that persists
// across runs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogFilePermissions is the default file permission for log files (rw-------).
const LogFilePermissions = 0o600

// Logger is the logging interface injected into every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Module(name string) Logger
	With(fields ...Field) Logger
}

// Field is a typed key/value pair attached to a log record.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Error creates an error field. The key is always "error".
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field holding an arbitrary value.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Config selects log level and outputs.
type Config struct {
	Level    string    // debug, info, warn, error
	Console  io.Writer // nil means os.Stderr
	FilePath string    // optional append-mode log file
}

// SlogLogger implements Logger on top of a slog.Handler.
type SlogLogger struct {
	handler slog.Handler
	level   slog.Level
	module  string
	fields  []Field
	closer  *fileCloser
}

type fileCloser struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a logger from cfg. When FilePath is set, records are written
// to both the console and the file.
func New(cfg Config) (*SlogLogger, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	level := ParseLevel(cfg.Level)

	var out io.Writer = console
	var closer *fileCloser
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
		}
		out = io.MultiWriter(console, f)
		closer = &fileCloser{file: f}
	}

	return &SlogLogger{
		handler: slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}),
		level:   level,
		closer:  closer,
	}, nil
}

// NewWriterLogger creates a logger writing text records to w. Tests use it
// with a bytes.Buffer or io.Discard.
func NewWriterLogger(w io.Writer, level string) *SlogLogger {
	lvl := ParseLevel(level)
	return &SlogLogger{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}),
		level:   lvl,
	}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return NewWriterLogger(io.Discard, "error")
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Module returns a logger scoped to a module. Nested modules are joined with a dot.
func (l *SlogLogger) Module(name string) Logger {
	if l == nil {
		return nil
	}
	module := name
	if l.module != "" {
		module = l.module + "." + name
	}
	return &SlogLogger{handler: l.handler, level: l.level, module: module, fields: l.fields, closer: l.closer}
}

// With returns a logger that adds fields to every record.
func (l *SlogLogger) With(fields ...Field) Logger {
	if l == nil {
		return nil
	}
	return &SlogLogger{handler: l.handler, level: l.level, module: l.module, fields: slices.Concat(l.fields, fields), closer: l.closer}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }

// Info logs an info message.
func (l *SlogLogger) Info(msg string, fields ...Field) { l.log(slog.LevelInfo, msg, fields) }

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, fields ...Field) { l.log(slog.LevelWarn, msg, fields) }

// Error logs an error message.
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// Close closes the log file if one is open.
func (l *SlogLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.closer.mu.Lock()
	defer l.closer.mu.Unlock()
	if l.closer.file == nil {
		return nil
	}
	err := l.closer.file.Close()
	l.closer.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	if l == nil || level < l.level {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields)+1)
	if l.module != "" {
		attrs = append(attrs, slog.String("module", l.module))
	}
	for _, f := range l.fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	_ = l.handler.Handle(context.Background(), r)
}

func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case float64:
		return slog.Float64(f.Key, v)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Duration:
		return slog.Duration(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}
