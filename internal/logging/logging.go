// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to stderr. Production uses the JSON formatter so
// lines can be shipped as-is; other environments get the human-readable text form.
func New(level string, production bool) *log.Logger {
	return NewWithWriter(os.Stderr, level, production)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, production bool) *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "easyshare",
	}
	if production {
		opts.Formatter = log.JSONFormatter
	}
	logger := log.NewWithOptions(w, opts)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
