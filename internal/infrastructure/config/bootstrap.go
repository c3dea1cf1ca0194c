package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "aistudio-gateway"

// HomeDir returns the user's gateway configuration home: ~/.aistudio-gateway
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the runtime directory tree exists with sane defaults.
// Called once at startup; safe to call repeatedly — only creates missing
// items, never overwrites an operator's edits.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{
		root,
		filepath.Join(root, "profiles"),
		filepath.Join(root, "logs"),
		filepath.Join(root, "logs", "fc_debug"),
		filepath.Join(root, "data"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
			logger.Warn("failed to write default config", zap.String("path", configPath), zap.Error(err))
		} else {
			logger.Info("wrote default config", zap.String("path", configPath))
		}
	}

	logger.Debug("gateway home directory OK", zap.String("home", root))
	return nil
}

const defaultConfig = `# ═══════════════════════════════════════════════════════════════
# AI Studio Gateway Configuration
# Auto-generated on first launch — feel free to edit.
# ═══════════════════════════════════════════════════════════════

gateway:
  host: 0.0.0.0
  port: 2048
  api_keys: []                 # Bearer tokens accepted on /v1/*; empty disables auth
  request_queue_capacity: 100

log:
  level: info                  # debug | info | warn | error
  format: console               # console | json
  file_path: logs/app.log
  fc_debug_dir: logs/fc_debug
  max_size_mb: 50
  max_backups: 5
  max_age_days: 14

profiles:
  dir: profiles
  ledger_dir: .
  rate_limit_cooldown: 60s
  quota_cooldown: 6h
  canary_cooldown: 30s
  canary_interval: 5m
  watchdog_interval: 30s
  persist_interval: 10s

acquisition:
  wire_intercept:
    enabled: false
    listen_addr: 127.0.0.1:8899
  helper_endpoint:
    enabled: false
    base_url: http://127.0.0.1:8900
    idle_timeout: 30s
  dom_scrape:
    poll_interval: 300ms

streaming:
  ttfb_timeout: 45s
  silence_timeout: 20s
  silence_check_interval: 2s
  max_silence_ticks: 10
  inter_request_delay_min: 250ms
  inter_request_delay_max: 750ms

function_call:
  default_mode: auto           # auto | native | emulated
  emulated_marker: "` + "```tool_call" + `"
  fuzzy_match_threshold: 0.70
  clear_between_requests: false

models: []
# Example:
# models:
#   - id: gemini-pro
#     thinking_mode: levels
#     thinking_levels: ["low", "medium", "high"]
#     supports_google_search: true

mcp:
  enabled: false
  endpoint: ""
  timeout: 15s

audit:
  dsn: data/audit.db
`
