package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDebugLogger_EmptyPathIsNop(t *testing.T) {
	l, err := NewDebugLogger("")
	if err != nil {
		t.Fatalf("NewDebugLogger(\"\") error = %v", err)
	}
	if l.Enabled() {
		t.Error("empty path should give a disabled logger")
	}
	l.Log("dropped %d", 1)
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDebugLogger_WritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger() error = %v", err)
	}
	l.Log("checkpoint %s", "step-3")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Logging after close is a no-op.
	l.Log("after close")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "debug log started") {
		t.Error("missing header line")
	}
	if !strings.Contains(content, "] checkpoint step-3\n") {
		t.Errorf("missing message, got:\n%s", content)
	}
	if strings.Contains(content, "after close") {
		t.Error("message written after Close")
	}
}

func TestNilLogger(t *testing.T) {
	var l *DebugLogger
	l.Log("nothing")
	if l.Enabled() {
		t.Error("nil logger should be disabled")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil logger = %v", err)
	}
}

func TestDebugf_UsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	SetDefault(l)
	t.Cleanup(func() {
		SetDefault(nil)
		l.Close()
	})

	Debugf("hello %s", "world")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "hello world") {
		t.Errorf("Debugf did not write to the default logger:\n%s", data)
	}
}

func TestNewForProject(t *testing.T) {
	root := t.TempDir()
	l := NewForProject(root)
	defer l.Close()

	if !l.Enabled() {
		t.Fatal("NewForProject should enable logging in a writable dir")
	}
	if _, err := os.Stat(DefaultPath(root)); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
