// Package logger provides structured logging with context support.
//
// The Logger interface is backed by zerolog and provides:
// - Structured logging (JSON or console format)
// - Log levels (Debug, Info, Warn, Error, Fatal)
// - Context propagation (request ID, user ID, session ID)
// - Field-based logging
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the severity of a log entry.
type Level int

const (
	// DebugLevel for debug messages.
	DebugLevel Level = iota
	// InfoLevel for informational messages.
	InfoLevel
	// WarnLevel for warning messages.
	WarnLevel
	// ErrorLevel for error messages.
	ErrorLevel
	// FatalLevel for fatal messages (calls os.Exit(1)).
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string into a Level. Unknown values map to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the main logger interface.
type Logger interface {
	// Level management
	SetLevel(level Level)
	GetLevel() Level

	// Basic logging
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// Context logging
	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger

	// Writer interface
	Writer() io.Writer
}

// Config holds logger configuration.
type Config struct {
	Level  Level
	Output io.Writer
	// Format is "json" or "console".
	Format string
	Caller bool
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  InfoLevel,
		Output: os.Stdout,
		Format: "json",
		Caller: false,
	}
}

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zl     zerolog.Logger
	output io.Writer
	level  *levelHolder
}

type levelHolder struct {
	mu    sync.RWMutex
	level Level
}

func (h *levelHolder) get() Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.level
}

func (h *levelHolder) set(l Level) {
	h.mu.Lock()
	h.level = l
	h.mu.Unlock()
}

// New creates a new logger with the given configuration.
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var w io.Writer = zerolog.SyncWriter(out)
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}

	return &ZeroLogger{
		zl:     ctx.Logger(),
		output: out,
		level:  &levelHolder{level: cfg.Level},
	}
}

// NewFromConfig builds a logger from textual settings. When file is set,
// output goes to that file in append mode instead of stdout.
func NewFromConfig(level, format, file string) (Logger, error) {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	if format != "" {
		cfg.Format = format
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cfg.Output = f
	}
	return New(cfg), nil
}

// Default returns a logger with default configuration.
func Default() Logger {
	return New(DefaultConfig())
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return New(&Config{Level: FatalLevel + 1, Output: io.Discard})
}

// SetLevel sets the minimum log level.
func (l *ZeroLogger) SetLevel(level Level) {
	l.level.set(level)
}

// GetLevel returns the current log level.
func (l *ZeroLogger) GetLevel() Level {
	return l.level.get()
}

func (l *ZeroLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *ZeroLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields) }
func (l *ZeroLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields) }
func (l *ZeroLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs a fatal message and exits.
func (l *ZeroLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

// WithContext returns a logger with context fields.
func (l *ZeroLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(extractContextFields(ctx)...)
}

// WithFields returns a logger with additional fields.
func (l *ZeroLogger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	zctx := l.zl.With()
	for _, f := range fields {
		zctx = zctx.Interface(f.Key, f.Value)
	}
	return &ZeroLogger{zl: zctx.Logger(), output: l.output, level: l.level}
}

// Writer returns the logger's output writer.
func (l *ZeroLogger) Writer() io.Writer {
	return l.output
}

func (l *ZeroLogger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}
	// WithLevel avoids zerolog's own exit on fatal; Fatal exits itself.
	ev := l.zl.WithLevel(level.zerolog())
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// Context keys for logger fields.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	sessionIDKey contextKey = "session_id"
	traceIDKey   contextKey = "trace_id"
)

func extractContextFields(ctx context.Context) []Field {
	var fields []Field
	for _, k := range []contextKey{requestIDKey, userIDKey, sessionIDKey, traceIDKey} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, Field{Key: string(k), Value: v})
		}
	}
	return fields
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSessionID adds session ID to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// Helper functions for creating fields

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field rendered as a string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates an error field.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

var (
	globalMu sync.RWMutex
	global   Logger = Default()
)

// SetGlobalLogger sets the global logger instance.
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// L returns the global logger.
func L() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Debug logs a debug message using the global logger.
func Debug(msg string, fields ...Field) { L().Debug(msg, fields...) }

// Info logs an info message using the global logger.
func Info(msg string, fields ...Field) { L().Info(msg, fields...) }

// Warn logs a warning message using the global logger.
func Warn(msg string, fields ...Field) { L().Warn(msg, fields...) }

// ErrorLog logs an error message using the global logger.
func ErrorLog(msg string, fields ...Field) { L().Error(msg, fields...) }

// Fatal logs a fatal message using the global logger.
func Fatal(msg string, fields ...Field) { L().Fatal(msg, fields...) }

// WithContext returns a logger with context fields from the global logger.
func WithContext(ctx context.Context) Logger { return L().WithContext(ctx) }

// WithFields returns a logger with additional fields from the global logger.
func WithFields(fields ...Field) Logger { return L().WithFields(fields...) }
