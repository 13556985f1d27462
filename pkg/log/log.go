package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. It is usable before Init for
// early startup and test output; Init replaces it with the configured one.
var Logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger()

// Config selects the level, the console format and the server log file.
type Config struct {
	// Level is a zerolog level string (debug, info, warn, error).
	// Unrecognized values fall back to info.
	Level string

	// JSON switches the console from human-readable lines to raw JSON.
	JSON bool

	// File, when set, receives every entry as JSON in addition to the
	// console. The server points this at log/range-cloud.log inside the
	// cloud directory once the layout exists.
	File string
}

// Init builds the root logger. The log file is opened for append and stays
// open for the life of the process.
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stdout
	if !cfg.JSON {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	writer := console
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.File, err)
		}
		writer = zerolog.MultiLevelWriter(console, f)
	}

	Logger = zerolog.New(writer).With().Timestamp().Logger()
	return nil
}

// WithComponent derives the child logger of a named server component.
// Every package logs through one of these, so the component field is
// present on every entry.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID tags a logger with the request id of an in-flight file or
// process task.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}
