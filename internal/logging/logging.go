// Package logging adapts zerolog to the service Logger and AuditRecorder
// interfaces.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hostelcore/internal/core"
)

// Level names a minimum log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config selects level, output and format.
type Config struct {
	Level  Level
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Logger implements core.Logger on a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*Logger)(nil)

// New builds a logger. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(ParseLevel(string(cfg.Level))).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Wrap adapts an existing zerolog logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(name))) {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog exposes the underlying logger for components that log directly.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(kv).Logger()}
}

func (l *Logger) Debug(msg string, kv ...any) { emit(l.zl.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { emit(l.zl.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { emit(l.zl.Warn(), msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { emit(l.zl.Error(), msg, kv) }

// emit attaches key/value pairs in slog order.
func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	if len(kv) > 0 {
		e = e.Fields(kv)
	}
	e.Msg(msg)
}

// AuditRecorder writes audit entries as structured log lines.
type AuditRecorder struct {
	zl zerolog.Logger
}

var _ core.AuditRecorder = (*AuditRecorder)(nil)

// NewAuditRecorder logs audit entries through l under the "audit" component.
func NewAuditRecorder(l *Logger) *AuditRecorder {
	return &AuditRecorder{zl: l.zl.With().Str("component", "audit").Logger()}
}

// Record implements core.AuditRecorder. Failed operations log at warn.
func (a *AuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	e := a.zl.Info()
	if entry.Status == core.AuditStatusError {
		e = a.zl.Warn().Str("error", entry.Error)
	}
	e.Str("operation", entry.Operation).
		Str("entity", string(entry.Entity)).
		Str("action", string(entry.Action)).
		Str("entity_id", entry.EntityID).
		Str("status", string(entry.Status)).
		Dur("duration", entry.Duration).
		Time("at", entry.Timestamp).
		Msg("audit")
}
