//go:build !shmq_debug

package diag

import "log/slog"

// SetLogger is a no-op outside the shmq_debug build; the signature matches
// the debug build so callers compile unconditionally.
func SetLogger(l *slog.Logger) {}

// Debug is a no-op in the default build. The compiler inlines and removes
// calls to it.
func Debug(msg string, args ...any) {}

// Info is a no-op in the default build.
func Info(msg string, args ...any) {}
