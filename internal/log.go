package internal

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps ERROR/WARN/INFO/DEBUG/TRACE to a level, defaulting to INFO
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LogLevelError
	case "WARN", "WARNING":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) toLogrus() logrus.Level {
	switch l {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger provides leveled logging with structured fields
type Logger struct {
	level LogLevel
	entry *logrus.Entry
}

// NewLogger creates a new logger with the specified level
func NewLogger(level LogLevel) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(level.toLogrus())
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{level: level, entry: logrus.NewEntry(base)}
}

// NewJSONLogger creates a logger emitting one JSON object per line
func NewJSONLogger(level LogLevel) *Logger {
	l := NewLogger(level)
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// NewDefaultLogger creates a logger based on LOG_LEVEL and LOG_FORMAT environment variables
func NewDefaultLogger() *Logger {
	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return NewJSONLogger(level)
	}
	return NewLogger(level)
}

// With returns a child logger carrying an extra field
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithField(key, value)}
}

// Component tags every line with the emitting component
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	l := NewLogger(LogLevelError)
	l.entry.Logger.SetOutput(io.Discard)
	return l
}

// Global logger instance
var DefaultLogger = NewDefaultLogger()
