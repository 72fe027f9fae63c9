// Package logger writes the canvas-runner.log run log.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	logFile      *os.File
	debugEnabled = os.Getenv("DEBUG") == "true"
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
		logFile = nil
		globalLogger = nil
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = newLogrus(f)

	return nil
}

func newLogrus(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat:  "2006/01/02 15:04:05.000000",
		FullTimestamp:    true,
		DisableColors:    true,
		DisableSorting:   true,
		QuoteEmptyFields: true,
	})
	if debugEnabled {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// SetDebug toggles debug-level output.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()

	debugEnabled = enabled
	if globalLogger == nil {
		return
	}
	if enabled {
		globalLogger.SetLevel(logrus.DebugLevel)
	} else {
		globalLogger.SetLevel(logrus.InfoLevel)
	}
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = nil
}

// WithFields returns an entry carrying structured fields, or nil before Init.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger == nil {
		return nil
	}
	return globalLogger.WithFields(logrus.Fields(fields))
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf(logrus.InfoLevel, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf(logrus.DebugLevel, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf(logrus.ErrorLevel, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf(logrus.WarnLevel, format, v...)
}

func logf(level logrus.Level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Log(level, fmt.Sprintf(format, v...))
	}
}

// GetWriter returns the underlying writer for use by drivers.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
