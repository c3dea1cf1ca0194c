package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置 — the full engine configuration tree, loaded once at
// startup and swapped atomically on hot reload (see watcher.go).
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Log LogConfig `mapstructure:"log"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	FunctionCall FunctionCallConfig `mapstructure:"function_call"`
	Models []ModelConfig `mapstructure:"models"`
	MCP MCPConfig `mapstructure:"mcp"`
	Audit AuditConfig `mapstructure:"audit"`
}

// GatewayConfig 网关配置 — the public HTTP surface.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int `mapstructure:"port"`
	APIKeys []string `mapstructure:"api_keys"` // accepted Bearer tokens; empty disables auth
	APIKeysFile string `mapstructure:"api_keys_file"` // one key per line, see LoadAPIKeysFile
	RequestQueueCapacity int `mapstructure:"request_queue_capacity"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
	FilePath string `mapstructure:"file_path"`
	FCDebugDir string `mapstructure:"fc_debug_dir"` // per-module function-call debug logs
	MaxSizeMB int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// ProfilesConfig 凭证池配置 — the auth-profile rotation pool.
type ProfilesConfig struct {
	Dir string `mapstructure:"dir"` // directory of opaque credential blobs
	LedgerDir string `mapstructure:"ledger_dir"` // cooldown_status.json / profile_usage.json
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	QuotaCooldown time.Duration `mapstructure:"quota_cooldown"`
	CanaryCooldown time.Duration `mapstructure:"canary_cooldown"`
	CanaryInterval time.Duration `mapstructure:"canary_interval"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	PersistInterval time.Duration `mapstructure:"persist_interval"` // how often the ledger is flushed
}

// AcquisitionConfig 响应获取三层配置
type AcquisitionConfig struct {
	WireIntercept WireInterceptConfig `mapstructure:"wire_intercept"`
	HelperEndpoint HelperEndpointConfig `mapstructure:"helper_endpoint"`
	DOMScrape DOMScrapeConfig `mapstructure:"dom_scrape"`
}

type WireInterceptConfig struct {
	Enabled bool `mapstructure:"enabled"`
	CACertPath string `mapstructure:"ca_cert_path"`
	CAKeyPath string `mapstructure:"ca_key_path"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type HelperEndpointConfig struct {
	Enabled bool `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type DOMScrapeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StreamingConfig 流式生命周期超时配置. TTFBTimeout and SilenceTimeout are not
// used directly — they feed streaming.DeriveTimeouts alongside
// ResponseCompletionTimeout, which enforces invariant 9 (silence budget >=
// TTFB budget, capped at 3x the total).
type StreamingConfig struct {
	ResponseCompletionTimeout time.Duration `mapstructure:"response_completion_timeout"`
	TTFBTimeout time.Duration `mapstructure:"ttfb_timeout"`
	SilenceTimeout time.Duration `mapstructure:"silence_timeout"`
	SilenceCheckInterval time.Duration `mapstructure:"silence_check_interval"`
	MaxSilenceTicks int `mapstructure:"max_silence_ticks"`
	InterRequestDelayMin time.Duration `mapstructure:"inter_request_delay_min"`
	InterRequestDelayMax time.Duration `mapstructure:"inter_request_delay_max"`
}

// FunctionCallConfig 函数调用配置
type FunctionCallConfig struct {
	DefaultMode string `mapstructure:"default_mode"` // auto | native | emulated
	EmulatedMarker string `mapstructure:"emulated_marker"`
	FuzzyMatchThreshold float64 `mapstructure:"fuzzy_match_threshold"`
	ClearBetweenRequests bool `mapstructure:"clear_between_requests"`
}

// ModelConfig 模型能力表条目
type ModelConfig struct {
	ID string `mapstructure:"id"`
	ThinkingMode string `mapstructure:"thinking_mode"` // none | levels | budget
	ThinkingLevels []string `mapstructure:"thinking_levels"`
	ThinkingBudgetMin int `mapstructure:"thinking_budget_min"`
	ThinkingBudgetMax int `mapstructure:"thinking_budget_max"`
	SupportsGoogleSearch bool `mapstructure:"supports_google_search"`
	SupportsURLContext bool `mapstructure:"supports_url_context"`
}

// MCPConfig 外部工具转发配置
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditConfig 审计日志数据库配置 — rotation/quota transitions only, never
// conversation history (explicit Non-goal).
type AuditConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Load 加载配置 — layered: defaults → global
// ~/.aistudio-gateway/ → project-local ./config/config.yaml → env vars.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".aistudio-gateway")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("AISTUDIO_GATEWAY")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 2048)
	v.SetDefault("gateway.request_queue_capacity", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file_path", "logs/app.log")
	v.SetDefault("log.fc_debug_dir", "logs/fc_debug")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("profiles.dir", "config/profiles")
	v.SetDefault("profiles.ledger_dir", "config")
	v.SetDefault("profiles.rate_limit_cooldown", "60s")
	v.SetDefault("profiles.quota_cooldown", "6h")
	v.SetDefault("profiles.canary_cooldown", "30s")
	v.SetDefault("profiles.canary_interval", "5m")
	v.SetDefault("profiles.watchdog_interval", "30s")
	v.SetDefault("profiles.persist_interval", "10s")

	v.SetDefault("acquisition.wire_intercept.enabled", false)
	v.SetDefault("acquisition.wire_intercept.listen_addr", "127.0.0.1:8899")
	v.SetDefault("acquisition.helper_endpoint.enabled", false)
	v.SetDefault("acquisition.helper_endpoint.base_url", "http://127.0.0.1:8900")
	v.SetDefault("acquisition.helper_endpoint.idle_timeout", "30s")
	v.SetDefault("acquisition.dom_scrape.poll_interval", "300ms")

	v.SetDefault("streaming.response_completion_timeout", "90s")
	v.SetDefault("streaming.ttfb_timeout", "45s")
	v.SetDefault("streaming.silence_timeout", "20s")
	v.SetDefault("streaming.silence_check_interval", "2s")
	v.SetDefault("streaming.max_silence_ticks", 10)
	v.SetDefault("streaming.inter_request_delay_min", "250ms")
	v.SetDefault("streaming.inter_request_delay_max", "750ms")

	v.SetDefault("function_call.default_mode", "auto")
	v.SetDefault("function_call.emulated_marker", "```tool_call")
	v.SetDefault("function_call.fuzzy_match_threshold", 0.70)
	v.SetDefault("function_call.clear_between_requests", false)

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.timeout", "15s")

	v.SetDefault("audit.dsn", "data/audit.db")
}

// LoadAPIKeysFile reads an unordered set of accepted API keys: one per
// line, "#" comments and blank lines ignored, each key at least 8 bytes
// after trimming. A missing path is not an error — it means no file-backed
// keys are configured, not that auth should be disabled (that decision is
// the caller's, based on the combined key set being empty).
func LoadAPIKeysFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open api keys file: %w", err)
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) < 8 {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read api keys file: %w", err)
	}
	return keys, nil
}
