// Package logging is the zerolog-backed logger shared by the CLI and the
// lead coordinator. Entries go to stderr so stdout stays parseable.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey keys correlation values in a context.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TenantIDKey  ContextKey = "tenant_id"
)

// Level is a minimum severity name as written in config and flags.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel converts a user-supplied level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "":
		return LevelInfo, nil
	default:
		return "", fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", s)
	}
}

// Config holds logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level Level

	// Component is included in all log entries.
	Component string

	// JSONFormat enables JSON output when true, human-readable when false.
	JSONFormat bool

	// Output sets the writer for logs (defaults to os.Stderr so stdout stays
	// clean for command output).
	Output io.Writer
}

// DefaultConfig returns a Config with defaults for interactive use.
func DefaultConfig() *Config {
	return &Config{
		Level:     LevelInfo,
		Component: "redora",
		Output:    os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a new Logger with the given fields attached to all subsequent logs.
	With(fields ...Field) Logger

	// WithContext returns a new Logger carrying correlation values found in ctx.
	WithContext(ctx context.Context) Logger

	// Zerolog returns the underlying zerolog.Logger.
	Zerolog() zerolog.Logger
}

// Field is one key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a Field. Stringer values such as lead categories are logged by
// name rather than by their underlying value.
func F(key string, value interface{}) Field {
	if s, ok := value.(fmt.Stringer); ok {
		if _, isErr := value.(error); !isErr {
			value = s.String()
		}
	}
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, Value: err}
}

// LeadID tags an entry with the lead it concerns.
func LeadID(id string) Field {
	return Field{Key: "lead_id", Value: id}
}

// pairs flattens fields into the ordered key/value slice zerolog.Fields takes.
func pairs(fields []Field) []interface{} {
	kv := make([]interface{}, 0, 2*len(fields))
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

type logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger. Console output goes through zerolog's
// ConsoleWriter unless JSONFormat is set.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zctx := zerolog.New(out).Level(zerologLevel(cfg.Level)).With().Timestamp()
	if cfg.Component != "" {
		zctx = zctx.Str("component", cfg.Component)
	}
	return &logger{zl: zctx.Logger()}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &logger{zl: zl}
}

func zerologLevel(l Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(string(l))
	if err != nil || l == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *logger) Zerolog() zerolog.Logger { return l.zl }

func (l *logger) Debug(msg string, fields ...Field) { l.zl.Debug().Fields(pairs(fields)).Msg(msg) }
func (l *logger) Info(msg string, fields ...Field)  { l.zl.Info().Fields(pairs(fields)).Msg(msg) }
func (l *logger) Warn(msg string, fields ...Field)  { l.zl.Warn().Fields(pairs(fields)).Msg(msg) }
func (l *logger) Error(msg string, fields ...Field) { l.zl.Error().Fields(pairs(fields)).Msg(msg) }

func (l *logger) With(fields ...Field) Logger {
	return &logger{zl: l.zl.With().Fields(pairs(fields)).Logger()}
}

// WithContext attaches the request and tenant ids carried by ctx.
func (l *logger) WithContext(ctx context.Context) Logger {
	zctx := l.zl.With()
	if id := RequestIDFromContext(ctx); id != "" {
		zctx = zctx.Str(string(RequestIDKey), id)
	}
	if id, _ := ctx.Value(TenantIDKey).(string); id != "" {
		zctx = zctx.Str(string(TenantIDKey), id)
	}
	return &logger{zl: zctx.Logger()}
}

// ContextWithRequestID returns a copy of ctx carrying requestID for WithContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithTenantID returns a copy of ctx carrying tenantID for WithContext.
func ContextWithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// nopLogger is a logger that discards all output.
type nopLogger struct{}

func (n *nopLogger) Debug(msg string, fields ...Field)      {}
func (n *nopLogger) Info(msg string, fields ...Field)       {}
func (n *nopLogger) Warn(msg string, fields ...Field)       {}
func (n *nopLogger) Error(msg string, fields ...Field)      {}
func (n *nopLogger) With(fields ...Field) Logger            { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger { return n }
func (n *nopLogger) Zerolog() zerolog.Logger                { return zerolog.Nop() }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return &nopLogger{}
}
