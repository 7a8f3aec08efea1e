// Package logger configures the process-wide slog logger with a colorized
// console handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// LevelFatal marks errors that terminate the process.
const LevelFatal slog.Level = 12

// ConsoleHandler renders records as single colorized lines on a writer.
type ConsoleHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	logLevel slog.Level
}

// NewConsoleHandler creates a handler writing to w at the given minimum level.
func NewConsoleHandler(w io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		mu:       &sync.Mutex{},
		writer:   w,
		logLevel: level,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	case LevelFatal:
		level = color.HiRedString("FATAL")
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)

	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
		return true
	})

	line += "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write([]byte(line))
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &ConsoleHandler{
		mu:       h.mu,
		writer:   h.writer,
		attrs:    newAttrs,
		logLevel: h.logLevel,
	}
}

func (h *ConsoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Init installs the console handler as the default slog logger.
func Init(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(NewConsoleHandler(os.Stdout, level)))
	slog.Debug("Logger initialized")
}

// Fatal logs at fatal severity and exits the process.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}
