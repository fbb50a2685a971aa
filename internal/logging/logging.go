// Package logging configures structured logging for the reconciler
// using zerolog. Output is human-readable on a terminal and JSON
// otherwise (or when LOG_FORMAT=json).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var root zerolog.Logger

func init() {
	root = newRoot()
}

func newRoot() zerolog.Logger {
	var writer io.Writer = os.Stderr

	if isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("LOG_FORMAT") != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// New returns a logger scoped to a component, e.g. logging.New("diagnose").
func New(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// SetOutput replaces the root logger's writer. Intended for tests.
func SetOutput(w io.Writer) {
	root = zerolog.New(w).With().Timestamp().Logger()
}
