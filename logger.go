package gloss

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger shared by the client and its cloud adapter.
// When a log file is configured it owns the file handle.
type Logger struct {
	zerolog.Logger
	closer io.Closer
}

// NewLogger creates a logger at info level, or debug level when debug is set.
// If logPath is empty, logs go to stderr.
func NewLogger(debug bool, logPath string) (*Logger, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
	)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		w = f
		closer = f
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	zl := zerolog.New(w).Level(level).With().
		Str("service", "gloss").
		Timestamp().
		Logger()

	return &Logger{Logger: zl, closer: closer}, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.With().Str("component", name).Logger()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
