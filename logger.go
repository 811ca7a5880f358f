package stagepipe

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultLogger is a no-op logger implementation
type DefaultLogger struct{}

// Debug implements Logger.Debug
func (l *DefaultLogger) Debug(format string, args ...interface{}) {}

// Info implements Logger.Info
func (l *DefaultLogger) Info(format string, args ...interface{}) {}

// Warn implements Logger.Warn
func (l *DefaultLogger) Warn(format string, args ...interface{}) {}

// Error implements Logger.Error
func (l *DefaultLogger) Error(format string, args ...interface{}) {}

// NewDefaultLogger creates a new default no-op logger
func NewDefaultLogger() Logger {
	return &DefaultLogger{}
}

// LogLevel is the minimum level a WriterLogger emits.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLogLevel parses debug, info, warn (or warning) and error.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// WriterLogger writes timestamped lines to an io.Writer.
type WriterLogger struct {
	mu    sync.Mutex
	w     io.Writer
	level LogLevel
	now   func() time.Time
}

// NewWriterLogger creates a logger writing lines at or above level to w.
func NewWriterLogger(w io.Writer, level LogLevel) *WriterLogger {
	return &WriterLogger{w: w, level: level, now: time.Now}
}

func (l *WriterLogger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s [%s] %s\n", l.now().Format(time.RFC3339), strings.ToUpper(level.String()), msg)
}

// Debug implements Logger.Debug
func (l *WriterLogger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Info implements Logger.Info
func (l *WriterLogger) Info(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Warn implements Logger.Warn
func (l *WriterLogger) Warn(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Error implements Logger.Error
func (l *WriterLogger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }
