// Package logging provides structured logging for echoping.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a logger writing to stderr, keeping diagnostics out of
// the per-exchange report on stdout. level is one of debug, info, warn or
// error; format is text or json.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter is NewLogger writing to w.
func NewLoggerWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to its slog.Level, case-insensitively.
// Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Attribute keys shared by every package.
const (
	KeyComponent = "component"
	KeyError     = "error"
	KeyState     = "state"
)

// Attribute keys for echo exchanges.
const (
	KeyPeer       = "peer"
	KeyIdentifier = "identifier"
	KeySequence   = "sequence"
	KeyCount      = "count"
	KeyDuration   = "duration"
	KeyAddress    = "address"
)

// Attribute keys for decode diagnostics.
const (
	KeyLength    = "length"
	KeyHeaderLen = "header_len"
	KeyReason    = "reason"
)
