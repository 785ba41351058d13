//go:build shmq_debug

// Package diag provides build-tag-gated diagnostic logging for shmq's
// internal packages, following the debug/release logger split in
// xll-gen-shm/go/logger_debug.go and logger_release.go. Build with
// -tags shmq_debug to enable it; the default build compiles every call in
// this package away to nothing.
package diag

import (
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetLogger replaces the logger used by Debug and Info.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

// Debug logs a message at Debug level.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs a message at Info level.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}
