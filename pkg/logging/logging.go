// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format string // "json", "console", or "auto"
	Level  string // "debug", "info", "warn", "error"
	Debug  bool   // shorthand for Level = "debug"
	Output io.Writer
}

var isTerminalFn = term.IsTerminal

// Init replaces the global zerolog logger and returns it.
func Init(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := parseLevel(cfg.Level)
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	if useConsole(cfg.Format, out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "json":
		return false
	case "console":
		return true
	}
	f, ok := out.(*os.File)
	return ok && isTerminalFn(int(f.Fd()))
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
