package logger

import "sync"

// Levels accepted by the log_level config key.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	instance *Logger
	initOnce sync.Once
)

// Get returns the process-wide logger. The first call initializes it at the
// given level; every later call returns that same instance and its level
// argument is ignored.
func Get(level string) *Logger {
	initOnce.Do(func() {
		instance = newZapLogger(level)
	})
	return instance
}
