package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Service is attached to every record so shipped logs can be told apart.
const Service = "reunion"

// New builds a logger writing to w. Production deployments get JSON lines,
// local runs get the text format.
func New(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)).With("service", Service)
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs a stderr logger as the process default.
func Setup(level string, json bool) *slog.Logger {
	logger := New(os.Stderr, level, json)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
