// Package logging provides the file-backed debug log shared by the planner
// and its collaborators.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pkgLogger is the package-level logger used by Debugf.
var (
	pkgLogger   *DebugLogger
	pkgLoggerMu sync.RWMutex
)

// SetDefault sets the package-level logger. Passing nil disables it.
func SetDefault(l *DebugLogger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = l
}

// Debugf writes a message using the package-level logger. It is used by
// components that are not handed a logger directly.
func Debugf(format string, args ...any) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	l.Log(format, args...)
}

// DebugLogger writes timestamped lines to a file. A logger without a file
// discards everything.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger appending to logPath, creating parent
// directories as needed. An empty path returns a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== geodecomp debug log started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// DefaultPath returns the debug log path inside a project.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".geodecomp", "logs", "debug.log")
}

// NewForProject creates a logger in the project's .geodecomp/logs
// directory, or a no-op logger if that fails.
func NewForProject(projectRoot string) *DebugLogger {
	logger, err := NewDebugLogger(DefaultPath(projectRoot))
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message. It is a no-op on a nil logger or one
// without a file.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
	l.file.Sync()
}

// Enabled reports whether the logger writes anywhere.
func (l *DebugLogger) Enabled() bool {
	return l != nil && l.file != nil
}

// Close closes the log file. It is safe on a nil or no-op logger.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.file.Close()
	l.file = nil
	return err
}
