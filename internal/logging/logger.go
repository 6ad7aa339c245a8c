// Package logging configures the global zerolog logger and emits the
// cold-start summary for each Lambda.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLogLevel  = "INTAKE_LOG_LEVEL"
	EnvLogFormat = "INTAKE_LOG_FORMAT"
)

// Init initializes the global logger with configuration from environment variables.
// INTAKE_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// INTAKE_LOG_FORMAT=console switches from JSON lines to human-readable output.
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(EnvLogLevel)))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if os.Getenv(EnvLogFormat) == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
