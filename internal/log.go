package internal

import (
	"log"
	"os"
	"strings"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var levelNames = map[string]LogLevel{
	"ERROR": LogLevelError,
	"WARN":  LogLevelWarn,
	"INFO":  LogLevelInfo,
	"DEBUG": LogLevelDebug,
}

// ParseLogLevel maps a level name (case-insensitive) to its LogLevel
func ParseLogLevel(name string) (LogLevel, bool) {
	level, ok := levelNames[strings.ToUpper(strings.TrimSpace(name))]
	return level, ok
}

// Logger is a leveled logger that tags every line with its component
type Logger struct {
	component string
	level     LogLevel
	out       *log.Logger
}

// NewLogger creates a component logger writing through out. A nil out uses
// the standard logger.
func NewLogger(component string, level LogLevel, out *log.Logger) *Logger {
	if out == nil {
		out = log.Default()
	}
	return &Logger{component: component, level: level, out: out}
}

// NewComponentLogger creates a logger whose level comes from LOG_LEVEL,
// defaulting to INFO.
func NewComponentLogger(component string) *Logger {
	level := LogLevelInfo
	if parsed, ok := ParseLogLevel(os.Getenv("LOG_LEVEL")); ok {
		level = parsed
	}
	return NewLogger(component, level, nil)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(LogLevelError, "❌ ", format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf(LogLevelWarn, "⚠️ ", format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(LogLevelInfo, "", format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(LogLevelDebug, "🔍 ", format, args...)
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) printf(level LogLevel, marker, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	l.out.Printf("["+l.component+"] "+marker+format, args...)
}
