package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMCPConfig_CreatesEmptyConfigWhenMissing(t *testing.T) {
	home := t.TempDir()
	cfg, path, err := LoadMCPConfig(home)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil || len(cfg.Servers) != 0 {
		t.Fatalf("expected an empty server list, got %+v", cfg)
	}
	wantPath := filepath.Join(home, "."+AppName, "mcp.json")
	if path != wantPath {
		t.Fatalf("expected path %q, got %q", wantPath, path)
	}
}

func TestLoadMCPConfig_RoundTripsExistingFile(t *testing.T) {
	home := t.TempDir()
	_, path, err := LoadMCPConfig(home) // create the empty file on disk
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := &MCPFileConfig{Servers: []MCPServerEntry{
		{Name: "search", Endpoint: "http://127.0.0.1:9001", Enabled: true},
	}}
	if err := SaveMCPConfig(path, cfg); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	reloaded, _, err := LoadMCPConfig(home)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}
	if len(reloaded.Servers) != 1 || reloaded.Servers[0].Name != "search" {
		t.Fatalf("unexpected reloaded config: %+v", reloaded)
	}
	if !reloaded.Servers[0].Enabled {
		t.Fatal("expected Enabled to survive the round trip")
	}
}

func TestLoadMCPConfig_MalformedJSONReturnsError(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "."+AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("unexpected error creating dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mcp.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}

	_, _, err := LoadMCPConfig(home)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
