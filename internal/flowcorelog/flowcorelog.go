// Package flowcorelog builds the zerolog.Logger that the demo CLI hands to
// engine.LogObserver. Grounded in mbflow's
// internal/infrastructure/logger.Setup/Logger shape, but swapped onto
// zerolog instead of log/slog so it matches the leveled, structured-field
// API engine.LogObserver already uses.
package flowcorelog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Setup builds a logger at the given level ("debug", "info", "warn",
// "error"; unrecognized values fall back to "info"). When stdout is a
// terminal the output is a colorized, human-readable console line
// (mirroring mbflow's ConsoleLogger); otherwise it's newline-delimited
// JSON suitable for log aggregation.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		writer = consoleWriter(os.Stdout)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(parseLevel(level))
	return logger
}

// Logger returns a logger at info level, for callers that don't need to
// thread a configured level through (demo CLI defaults, package init
// paths that predate config loading).
func Logger() zerolog.Logger {
	return Setup("info")
}

func consoleWriter(dest *os.File) zerolog.ConsoleWriter {
	cw := zerolog.NewConsoleWriter()
	cw.Out = colorable.NewColorable(dest)
	cw.TimeFormat = time.RFC3339
	return cw
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
