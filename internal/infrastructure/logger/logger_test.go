package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_DefaultsToInfoOnInvalidLevel(t *testing.T) {
	l, err := NewLogger(Config{Level: "not-a-level", Format: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected the fallback level to be info or more verbose")
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be disabled under the info fallback")
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewLogger(Config{Level: "debug", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("hello")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the log file to contain the written entry")
	}
}

func TestNewLogger_ConsoleFormatDoesNotError(t *testing.T) {
	if _, err := NewLogger(Config{Level: "info", Format: "console"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFCDebugLogger_WritesToModuleFile(t *testing.T) {
	dir := t.TempDir()
	l := NewFCDebugLogger(dir, "orchestrator", 0, 0, 0)
	l.Debug("fc debug entry")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "orchestrator.log"))
	if err != nil {
		t.Fatalf("unexpected error reading debug log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the debug log file to contain the written entry")
	}
}

func TestOrDefault(t *testing.T) {
	if orDefault(0, 42) != 42 {
		t.Fatal("expected zero to fall back to default")
	}
	if orDefault(-1, 42) != 42 {
		t.Fatal("expected negative to fall back to default")
	}
	if orDefault(7, 42) != 7 {
		t.Fatal("expected a positive value to be kept")
	}
}
