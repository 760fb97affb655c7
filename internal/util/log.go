// Package util provides shared utility functions.
package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger, which writes
// to stdout unless SetLogFile tees it elsewhere.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug messages are printed. Hot paths use it to
// skip formatting packet summaries nobody will see.
func DebugEnabled() bool {
	return pterm.DefaultLogger.Level == pterm.LogLevelDebug || pterm.DefaultLogger.Level == pterm.LogLevelTrace
}

// SetLevel maps a textual level (debug, info, warn, error) onto the logger.
// Unknown values fall back to info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	case "warn", "warning":
		pterm.DefaultLogger.Level = pterm.LogLevelWarn
	case "error":
		pterm.DefaultLogger.Level = pterm.LogLevelError
	default:
		pterm.DefaultLogger.Level = pterm.LogLevelInfo
	}
}

// SetJSON switches the logger to pterm's JSON formatter.
func SetJSON(enabled bool) {
	if enabled {
		pterm.DefaultLogger.Formatter = pterm.LogFormatterJSON
	} else {
		pterm.DefaultLogger.Formatter = pterm.LogFormatterColorful
	}
}

// LogFile describes an optional rotated log file.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SetLogFile tees log output into a size-rotated file, keeping the current
// console writer. The returned closer flushes and closes the file; it is a
// no-op when Path is empty.
func SetLogFile(f LogFile) io.Closer {
	if strings.TrimSpace(f.Path) == "" {
		return nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    max(f.MaxSizeMB, 1),
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
		Compress:   f.Compress,
	}
	console := pterm.DefaultLogger.Writer
	if console == nil {
		console = os.Stdout
	}
	pterm.DefaultLogger.Writer = io.MultiWriter(console, lj)
	return lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
