// Package logger provides logging implementations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"

	"github.com/user/dusk/pkg/ports"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

type field struct {
	key   string
	value interface{}
}

// ConsoleLogger logs messages to the console with color support.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	fields    []field
	color     bool
	out       io.Writer
	errOut    io.Writer
	mu        *sync.Mutex
}

// NewConsole creates a new console logger with the specified level.
// Color output is automatically enabled when stdout is a terminal.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	return &ConsoleLogger{
		level:  level,
		color:  isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
		out:    os.Stdout,
		errOut: os.Stderr,
		mu:     &sync.Mutex{},
	}
}

// NewConsoleWriter creates an uncolored console logger writing every level to w.
func NewConsoleWriter(level ports.LogLevel, w io.Writer) *ConsoleLogger {
	return &ConsoleLogger{
		level:  level,
		out:    w,
		errOut: w,
		mu:     &sync.Mutex{},
	}
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	if l.level > ports.LevelDebug {
		return
	}
	l.log(ports.LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	if l.level > ports.LevelInfo {
		return
	}
	l.log(ports.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	if l.level > ports.LevelWarn {
		return
	}
	l.log(ports.LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	if l.level > ports.LevelError {
		return
	}
	l.log(ports.LevelError, msg, args...)
}

// WithComponent returns a new logger with the specified component name.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	c := l.clone()
	c.component = component
	return c
}

// With returns a new logger that appends key=value to every line.
func (l *ConsoleLogger) With(key string, value interface{}) ports.Logger {
	c := l.clone()
	c.fields = append(c.fields, field{key: key, value: value})
	return c
}

func (l *ConsoleLogger) clone() *ConsoleLogger {
	c := *l
	c.fields = append([]field(nil), l.fields...)
	return &c
}

// log outputs a log message with appropriate formatting.
func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	translated := l10n.F(msg, args...)

	var b strings.Builder
	if l.component != "" {
		if l.color {
			fmt.Fprintf(&b, "%s[%s]%s ", colorCyan, l.component, colorReset)
		} else {
			fmt.Fprintf(&b, "[%s] ", l.component)
		}
	}
	b.WriteString(translated)
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%v", f.key, f.value)
	}
	output := b.String()

	if l.color {
		switch level {
		case ports.LevelDebug:
			output = colorGray + output + colorReset
		case ports.LevelWarn:
			output = colorYellow + output + colorReset
		case ports.LevelError:
			output = colorRed + output + colorReset
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if level >= ports.LevelWarn {
		fmt.Fprintln(l.errOut, output)
	} else {
		fmt.Fprintln(l.out, output)
	}
}

// Ensure ConsoleLogger implements ports.Logger
var _ ports.Logger = (*ConsoleLogger)(nil)
