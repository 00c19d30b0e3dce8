// Package config handles application configuration and setup
package config

import (
	"github.com/retroenv/retrogolib/log"
)

// Log levels of the LOG_LEVEL setting.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelError = "error"
)

// CreateLogger creates a logger for the debug and quiet flags. If neither
// flag is set the log level of the settings is used.
func CreateLogger(debug, quiet bool, settings Settings) *log.Logger {
	cfg := log.DefaultConfig()
	switch logLevel(debug, quiet, settings) {
	case LogLevelDebug:
		cfg.Level = log.DebugLevel
	case LogLevelError:
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

func logLevel(debug, quiet bool, settings Settings) string {
	switch {
	case debug:
		return LogLevelDebug
	case quiet:
		return LogLevelError
	case settings.LogLevel != "":
		return settings.LogLevel
	default:
		return LogLevelInfo
	}
}
