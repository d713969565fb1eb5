// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a logger writing to stdout. format is "text", "json" or
// "auto"; auto picks text on a terminal and JSON otherwise. The returned
// LevelVar can raise or lower verbosity at runtime.
func New(verbose bool, format string) (*slog.Logger, *slog.LevelVar) {
	return NewWithWriter(os.Stdout, verbose, format, isTerminal(os.Stdout))
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, verbose bool, format string, terminal bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch {
	case format == "text", format != "json" && terminal:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
