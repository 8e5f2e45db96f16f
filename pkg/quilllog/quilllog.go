// Package quilllog is a small leveled wrapper over the standard log
// package, the level configured once at startup from LOG_LEVEL.
package quilllog

import (
	"log"
	"os"
	"strings"
)

// Level is a logging verbosity threshold.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var current Level = LevelInfo

// Init sets the active level from the LOG_LEVEL environment variable
// ("debug", "info", or "error"; defaults to "info").
func Init() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		current = LevelDebug
	case "error":
		current = LevelError
	default:
		current = LevelInfo
	}
}

// Debug logs a debug message, only when LOG_LEVEL=debug.
func Debug(format string, v ...interface{}) {
	if current >= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs an info message, when LOG_LEVEL is info or debug.
func Info(format string, v ...interface{}) {
	if current >= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}

// Error always logs.
func Error(format string, v ...interface{}) {
	log.Printf("[ERROR] "+format, v...)
}
