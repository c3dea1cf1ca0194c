package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestBootstrap_CreatesDirectoryTreeAndDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := Bootstrap(zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := filepath.Join(home, "."+AppName)
	for _, dir := range []string{root, filepath.Join(root, "profiles"), filepath.Join(root, "logs"), filepath.Join(root, "logs", "fc_debug"), filepath.Join(root, "data")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist, err=%v", dir, err)
		}
	}

	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("expected default config.yaml to be written: %v", err)
	}
}

func TestBootstrap_NeverOverwritesExistingConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := filepath.Join(home, "."+AppName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	configPath := filepath.Join(root, "config.yaml")
	custom := "gateway:\n  port: 1234\n"
	if err := os.WriteFile(configPath, []byte(custom), 0o644); err != nil {
		t.Fatalf("unexpected error seeding config: %v", err)
	}

	if err := Bootstrap(zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error reading config: %v", err)
	}
	if string(got) != custom {
		t.Fatal("expected Bootstrap to leave an existing config.yaml untouched")
	}
}

func TestBootstrap_IsIdempotent(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := Bootstrap(zap.NewNop()); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if err := Bootstrap(zap.NewNop()); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
}

func TestHomeDir_UsesAppNameSuffix(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := HomeDir()
	want := filepath.Join(home, "."+AppName)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
