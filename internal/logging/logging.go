// Package logging builds the slog logger used across quizvault.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	clog "github.com/charmbracelet/log"
)

// New returns a slog.Logger backed by a charmbracelet logger writing to w.
// format is one of "text", "json" or "logfmt".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := clog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var formatter clog.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = clog.TextFormatter
	case "json":
		formatter = clog.JSONFormatter
	case "logfmt":
		formatter = clog.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	handler := clog.NewWithOptions(w, clog.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
	return slog.New(handler), nil
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
