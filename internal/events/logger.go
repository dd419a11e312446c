package events

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// SetupLogger installs the process-wide slog default: debug level when
// verbose, human-readable text on a terminal, JSON otherwise (or when
// forceJSON is set for automation).
func SetupLogger(verbose, forceJSON bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if !forceJSON && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
