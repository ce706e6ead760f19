package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// multiHandler wraps multiple handlers to write to multiple destinations
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Options controls where log records go
type Options struct {
	// Console receives human-readable text records; usually stderr so
	// answers on stdout stay clean
	Console io.Writer
	// ConsoleLevel is the minimum level written to Console
	ConsoleLevel slog.Level
	// FilePath, when set, receives every record at FileLevel as JSON
	FilePath  string
	FileLevel slog.Level
}

// Setup creates a logger that writes text to the console and, optionally,
// JSON to a log file. The returned file must be closed by the caller and is
// nil when no log file was requested.
func Setup(opts Options) (*slog.Logger, *os.File, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	textHandler := slog.NewTextHandler(console, &slog.HandlerOptions{
		Level: opts.ConsoleLevel,
	})

	if opts.FilePath == "" {
		return slog.New(textHandler), nil, nil
	}

	logFile, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}

	jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: opts.FileLevel,
	})

	logger := slog.New(&multiHandler{
		handlers: []slog.Handler{textHandler, jsonHandler},
	})

	return logger, logFile, nil
}
