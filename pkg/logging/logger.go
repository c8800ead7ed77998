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
	// LevelTrace logs every request and poll observation.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Verbosity thresholds for the numeric -v flag.
const (
	VerbosityDebug = 4
	VerbosityTrace = 8
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
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// LevelFromVerbosity maps the numeric verbosity of the command line to a level.
func LevelFromVerbosity(v int) LogLevel {
	switch {
	case v >= VerbosityTrace:
		return LevelTrace
	case v >= VerbosityDebug:
		return LevelDebug
	default:
		return LevelInfo
	}
}

// IsTerminal reports whether f is attached to a character device.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "trace":
		return zerolog.TraceLevel
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

// Log Level Guidelines:
//
// Trace: Every HTTP request and every poll observation
//   - method, path, status code
//
// Debug: Detailed information for debugging
//   - Endpoint resolution (explicit, region, probe, cache)
//   - Job submission and poll attempts
//   - Page rasterization details
//
// Info: Normal operation events
//   - Dashboard exported, pages converted
//   - Report written, report published
//   - Run summary
//
// Warn: Warning conditions that don't prevent the run
//   - Job unsuccessful after the poll budget
//   - Endpoint cache or ledger errors
//   - Report items without page images
//
// Error: Error conditions requiring attention
//   - Failed submissions (HTTP status and body)
//   - Conversion failures
//   - Configuration errors
//
// Context Fields:
//   - dashboard: dashboard id
//   - job: export job id
//   - status: last observed job status
//   - attempt / max_attempts: poll progress
//   - path: file written or read
//   - endpoint: resolved API base endpoint
//   - error_class: client, server, network
