package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/dusk/pkg/ports"
)

// StructuredLogger writes leveled records through zerolog.
// Messages are not translated so that log processors see stable keys.
type StructuredLogger struct {
	zl zerolog.Logger
}

// NewStructured creates a zerolog-backed logger. When pretty is true the
// output is zerolog's human console format, otherwise one JSON object per line.
func NewStructured(level ports.LogLevel, w io.Writer, pretty bool) *StructuredLogger {
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(out).Level(toZerolog(level)).With().Timestamp().Logger()
	return &StructuredLogger{zl: zl}
}

func toZerolog(level ports.LogLevel) zerolog.Level {
	switch level {
	case ports.LevelDebug:
		return zerolog.DebugLevel
	case ports.LevelInfo:
		return zerolog.InfoLevel
	case ports.LevelWarn:
		return zerolog.WarnLevel
	case ports.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func (l *StructuredLogger) Debug(msg string, args ...interface{}) {
	l.zl.Debug().Msg(format(msg, args))
}

func (l *StructuredLogger) Info(msg string, args ...interface{}) {
	l.zl.Info().Msg(format(msg, args))
}

func (l *StructuredLogger) Warn(msg string, args ...interface{}) {
	l.zl.Warn().Msg(format(msg, args))
}

func (l *StructuredLogger) Error(msg string, args ...interface{}) {
	l.zl.Error().Msg(format(msg, args))
}

// WithComponent returns a logger carrying a component field.
func (l *StructuredLogger) WithComponent(component string) ports.Logger {
	return &StructuredLogger{zl: l.zl.With().Str("component", component).Logger()}
}

// With returns a logger carrying an extra field.
func (l *StructuredLogger) With(key string, value interface{}) ports.Logger {
	return &StructuredLogger{zl: l.zl.With().Interface(key, value).Logger()}
}

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

var _ ports.Logger = (*StructuredLogger)(nil)
