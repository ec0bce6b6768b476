package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// NewLogger logs to stderr: human-readable text on a terminal, JSON
// otherwise.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stderr, level, !term.IsTerminal(int(os.Stderr.Fd())))
}

func NewLoggerTo(w io.Writer, level string, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
