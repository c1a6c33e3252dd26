// Package logging provides the file-backed debug trace used by
// long-running crew hosts.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to a file. A nil logger, or one
// created with an empty path, discards everything.
type DebugLogger struct {
	out    *sink
	prefix string
}

type sink struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger appending to path, creating parent
// directories as needed. An empty path yields a no-op logger.
func NewDebugLogger(path string) (*DebugLogger, error) {
	if path == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{out: &sink{file: f}}
	l.Log("=== crew debug log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// With returns a logger sharing the same file that prefixes every line
// with [component].
func (l *DebugLogger) With(component string) *DebugLogger {
	if l == nil {
		return nil
	}
	return &DebugLogger{out: l.out, prefix: "[" + component + "] "}
}

// Log writes a timestamped message.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	fmt.Fprintf(l.out.file, "[%s] %s%s\n", timestamp, l.prefix, msg)
	l.out.file.Sync()
}

// Close closes the log file. Loggers derived through With share the file
// and must not be used afterwards.
func (l *DebugLogger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.file.Close()
}
