// Package ui provides terminal styling and logger setup for clausewise.
package ui

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// InitLogger sends plain, untimestamped logs to stderr at info level.
func InitLogger() {
	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
		Level: log.InfoLevel,
	}))
}

// SetDebug toggles debug level.
func SetDebug(on bool) {
	level := log.InfoLevel
	if on {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

// SetServerMode adds RFC 3339 timestamps and a machine-readable formatter
// for long-running processes: JSON when asJSON is set, logfmt otherwise.
func SetServerMode(asJSON bool) {
	formatter := log.LogfmtFormatter
	if asJSON {
		formatter = log.JSONFormatter
	}
	log.SetFormatter(formatter)
	log.SetTimeFormat(time.RFC3339)
	log.SetReportTimestamp(true)
}
