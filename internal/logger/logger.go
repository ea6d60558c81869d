// Package logger builds the application logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to stderr. Verbose enables
// debug-level output.
func New(verbose bool) zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, verbose)
}

// NewWithWriter returns a logger for an arbitrary destination.
func NewWithWriter(writer io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()
}
