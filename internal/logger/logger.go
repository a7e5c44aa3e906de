package logger

import (
	"strings"
	"sync"
)

// Log levels accepted in configuration.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the process logger used by cmd.
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger configured with the provided level.
// The first call initializes the logger; later calls ignore the level.
// Library packages receive a *Logger explicitly instead of calling Get.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = New(level)
	})
	return globalLogger
}

// New builds a standalone logger, e.g. one per bridge.
func New(level string) *Logger {
	return newZapLogger(normalizeLevel(level))
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch normalizeLevel(s) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return true
	}
	return false
}

func normalizeLevel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
