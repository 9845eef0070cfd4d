// Package clog wraps log/slog with a small Logger interface, familiar
// Trace/Debug/Info/Warn/Error/Crit level names, a colorized terminal
// handler, and an opt-in request-id context carrier.
package clog

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-stack/stack"
)

// Level numbering extends slog's four built-in levels, which sit in the
// middle, with Trace below Debug and Crit above Error.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelCrit  slog.Level = 12
)

// LevelString renders level the way the terminal handler labels it.
func LevelString(level slog.Level) string {
	switch {
	case level <= LevelTrace:
		return "TRACE"
	case level <= LevelDebug:
		return "DEBUG"
	case level <= LevelInfo:
		return "INFO"
	case level <= LevelWarn:
		return "WARN"
	case level <= LevelError:
		return "ERROR"
	default:
		return "CRIT"
	}
}

// Logger is the interface call sites use. Every method takes a message and
// an even-length list of key/value pairs, mirroring slog's unstructured
// variadic convention.
type Logger interface {
	New(ctx ...any) Logger
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

type logger struct {
	inner *slog.Logger
}

var root Logger = &logger{inner: slog.New(NewStderrHandler())}

// Root returns the package-level root logger.
func Root() Logger { return root }

// SetRoot replaces the root logger's handler, for wiring at process
// startup (e.g. switching to a file handler once config is loaded).
func SetRoot(h slog.Handler) { root = &logger{inner: slog.New(h)} }

// New returns a child of the root logger annotated with ctx.
func New(ctx ...any) Logger { return root.New(ctx...) }

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.log(LevelError, msg, ctx...) }

// Crit logs at the highest level with a captured call stack, then
// terminates the process.
func (l *logger) Crit(msg string, ctx ...any) {
	ctx = append(append([]any{}, ctx...), "stack", stack.Trace().TrimRuntime())
	l.log(LevelCrit, msg, ctx...)
	os.Exit(1)
}

func (l *logger) log(level slog.Level, msg string, ctx ...any) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}
