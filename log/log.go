// Package log provides the leveled, contextual logger used by every
// component of the node, modeled on go-ethereum's log package: a small
// Logger interface over log/slog, with call-site capture on the higher
// severities.
package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-stack/stack"
)

// Level mirrors the node's six severities. Trace and Debug are collapsed
// into slog's Debug level; Crit exits the process after logging.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger is the interface every component depends on. New components
// should accept a Logger rather than constructing one, so tests can
// inject a discard logger.
type Logger interface {
	With(ctx ...any) Logger
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

type logger struct {
	slog *slog.Logger
}

// New constructs a Logger writing text-formatted records to w at or above
// minLevel. ctx is a set of key/value pairs attached to every record.
func New(w *os.File, minLevel Level, ctx ...any) Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel.slogLevel()})
	return &logger{slog: slog.New(h).With(ctx...)}
}

// Discard returns a Logger that drops every record; useful in tests.
func Discard() Logger {
	return &logger{slog: slog.New(slog.NewTextHandler(discardWriter{}, nil))}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *logger) With(ctx ...any) Logger {
	return &logger{slog: l.slog.With(ctx...)}
}

func (l *logger) Trace(msg string, ctx ...any) { l.slog.Debug(msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.slog.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.slog.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.slog.Warn(msg, ctx...) }

// Error logs at error severity, attaching the immediate caller's frame so
// operators can find the call site without a full stack trace.
func (l *logger) Error(msg string, ctx ...any) {
	l.slog.Error(msg, append(ctx, "caller", callerFrame())...)
}

// Crit logs at error severity with the caller frame, then terminates the
// process. Reserved for unrecoverable startup failures.
func (l *logger) Crit(msg string, ctx ...any) {
	l.slog.Error(msg, append(ctx, "caller", callerFrame())...)
	os.Exit(1)
}

func callerFrame() string {
	c := stack.Caller(2)
	return stack.Call(c).String()
}

// FromContext extracts a Logger previously attached with NewContext, or
// returns a discard Logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Discard()
}

// NewContext returns a child context carrying l, retrievable via
// FromContext.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

type loggerKey struct{}
