// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewEndpointLogger creates a logger scoped to one endpoint's
// extraction, the scope at which absorbed fetch failures are reported.
func NewEndpointLogger(endpoint string) zerolog.Logger {
	return log.With().Str("component", "extract").Str("endpoint", endpoint).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Per-page fetch results (page, record count)
//   - Batch boundaries and empty-batch counts
//   - Chunk emissions and sink load timings
//
// Info: Normal operation events
//   - Extraction start/completion per endpoint
//   - Full-refresh truncation
//   - Empty-run termination decisions
//   - Pipeline summary and report output
//
// Warn: Warning conditions that don't prevent operation
//   - Absorbed page fetch failures (logged, counted, never fatal)
//   - Checkpoint save failures (resume degrades, run continues)
//
// Error: Error conditions requiring attention
//   - Sink load failures (fatal for the endpoint's run)
//   - Configuration errors
//   - Destination database unavailability
//
// Context Fields:
//   - endpoint: endpoint name (orders, customers, ...)
//   - page: page number of a fetch
//   - status: HTTP status code
//   - error_class: failure classification (client, server, rate_limit, network, decode)
//   - records / chunks: extraction counters
//   - batch_start / batch_end: page range of a batch
