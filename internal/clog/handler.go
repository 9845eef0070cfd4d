package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "01-02|15:04:05.000"

// TerminalHandler is a slog.Handler that renders records as
// `time [LEVEL] message key=value ...`, color-coded by level when the
// destination is a real terminal.
type TerminalHandler struct {
	mu       *sync.Mutex
	wr       io.Writer
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler wraps wr. Set useColor only when wr is known to
// support ANSI escapes (see NewStderrHandler).
func NewTerminalHandler(wr io.Writer, useColor bool) *TerminalHandler {
	return &TerminalHandler{mu: new(sync.Mutex), wr: wr, useColor: useColor}
}

// NewStderrHandler returns a TerminalHandler over stderr, colorized iff
// stderr is attached to an interactive terminal.
func NewStderrHandler() *TerminalHandler {
	var w io.Writer = os.Stderr
	useColor := false
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = colorable.NewColorable(os.Stderr)
		useColor = true
	}
	return NewTerminalHandler(w, useColor)
}

// NewFileHandler returns a handler writing newline-delimited records to a
// lumberjack-rotated file, uncolored (ANSI codes in log files are noise).
func NewFileHandler(path string, maxSizeMB, maxBackups, maxAgeDays int) *TerminalHandler {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return NewTerminalHandler(lj, false)
}

func (h *TerminalHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelStr := h.renderLevel(r.Level)
	fmt.Fprintf(h.wr, "%s %s %s", r.Time.Format(timeFormat), levelStr, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(h.wr, " %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.wr, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	fmt.Fprintln(h.wr)
	return nil
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TerminalHandler{mu: h.mu, wr: h.wr, useColor: h.useColor, attrs: merged}
}

// WithGroup is unsupported: every attr is flattened at the top level.
func (h *TerminalHandler) WithGroup(_ string) slog.Handler { return h }

func (h *TerminalHandler) renderLevel(level slog.Level) string {
	name := LevelString(level)
	if !h.useColor {
		return "[" + name + "]"
	}
	var c *color.Color
	switch {
	case level <= LevelTrace:
		c = color.New(color.FgHiBlack)
	case level <= LevelDebug:
		c = color.New(color.FgBlue)
	case level <= LevelInfo:
		c = color.New(color.FgGreen)
	case level <= LevelWarn:
		c = color.New(color.FgYellow)
	case level <= LevelError:
		c = color.New(color.FgRed)
	default:
		c = color.New(color.FgHiRed, color.Bold)
	}
	return "[" + c.Sprint(name) + "]"
}
