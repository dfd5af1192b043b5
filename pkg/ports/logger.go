// Package ports defines interfaces for external dependencies.
package ports

import "strings"

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is for per-frame and per-process details
	// (seeks, respawns, cache misses, dropped ticks).
	LevelDebug LogLevel = iota
	// LevelInfo is for session-level progress (project loaded, export started).
	LevelInfo
	// LevelWarn is for recoverable problems (decoder restarted, frame reused).
	LevelWarn
	// LevelError is for failures surfaced to the user.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a string into a LogLevel. Unknown values map to LevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "quiet", "off":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// Logger abstracts logging operations with multi-language support.
type Logger interface {
	// Debug logs a debug message with optional format arguments.
	// The msg parameter is the message key that can be translated.
	Debug(msg string, args ...interface{})

	// Info logs an informational message with optional format arguments.
	Info(msg string, args ...interface{})

	// Warn logs a warning message with optional format arguments.
	Warn(msg string, args ...interface{})

	// Error logs an error message with optional format arguments.
	Error(msg string, args ...interface{})

	// WithComponent returns a new Logger that tags messages with the component name.
	WithComponent(component string) Logger

	// With returns a new Logger that attaches a key/value field to every message.
	With(key string, value interface{}) Logger
}
