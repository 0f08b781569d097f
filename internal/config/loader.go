package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"orchd/pkg/types"
)

// Config holds runtime parameters for the daemon plus the model catalog.
// Zero values mean "unspecified" and fall back to defaults in Normalize.
type Config struct {
	// ControlAddr is the TCP address of the JSON control plane.
	ControlAddr string `json:"control_addr" yaml:"control_addr" toml:"control_addr"`
	// HTTPAddr is the address of the HTTP admin API. Empty disables it.
	HTTPAddr string `json:"http_addr" yaml:"http_addr" toml:"http_addr"`

	// VRAMBudget is either a percentage of VRAMTotalMB (values <= 100) or an
	// absolute amount in MB (values > 100). Zero means unlimited.
	VRAMBudget  int `json:"vram_budget" yaml:"vram_budget" toml:"vram_budget"`
	VRAMTotalMB int `json:"vram_total_mb" yaml:"vram_total_mb" toml:"vram_total_mb"`

	HealthIntervalSec     int `json:"health_interval_sec" yaml:"health_interval_sec" toml:"health_interval_sec"`
	MemoryIntervalSec     int `json:"memory_interval_sec" yaml:"memory_interval_sec" toml:"memory_interval_sec"`
	DefaultIdleTimeoutSec int `json:"default_idle_timeout_sec" yaml:"default_idle_timeout_sec" toml:"default_idle_timeout_sec"`
	LoadRetries           int `json:"load_retries" yaml:"load_retries" toml:"load_retries"`

	FastTimeoutSec       int `json:"fast_timeout_sec" yaml:"fast_timeout_sec" toml:"fast_timeout_sec"`
	SlowTimeoutSec       int `json:"slow_timeout_sec" yaml:"slow_timeout_sec" toml:"slow_timeout_sec"`
	RemoteLoadTimeoutSec int `json:"remote_load_timeout_sec" yaml:"remote_load_timeout_sec" toml:"remote_load_timeout_sec"`
	CircuitThreshold     int `json:"circuit_threshold" yaml:"circuit_threshold" toml:"circuit_threshold"`
	CircuitCooldownSec   int `json:"circuit_cooldown_sec" yaml:"circuit_cooldown_sec" toml:"circuit_cooldown_sec"`

	// StateDBPath is the sqlite file persisting usage recency across restarts.
	// Empty disables persistence.
	StateDBPath string `json:"state_db_path" yaml:"state_db_path" toml:"state_db_path"`
	// ModelsDir is scanned for *.gguf files registered as in-process models in
	// addition to the explicit catalog. Empty disables scanning.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	Models []types.Model `json:"models" yaml:"models" toml:"models"`
}

// Defaults used when the corresponding field is unspecified.
const (
	DefaultControlAddr        = "127.0.0.1:5555"
	DefaultHealthIntervalSec  = 30
	DefaultMemoryIntervalSec  = 60
	DefaultIdleTimeoutSec     = 300
	DefaultFastTimeoutSec     = 5
	DefaultSlowTimeoutSec     = 120
	DefaultRemoteLoadTimeout  = 30
	DefaultCircuitThreshold   = 3
	DefaultCircuitCooldownSec = 30
)

// Load reads a configuration file based on its extension. Supports
// .yaml/.yml, .json and .toml. A missing file yields the defaults: the
// daemon starts with an empty catalog rather than failing.
func Load(path string, log zerolog.Logger) (Config, error) {
	var cfg Config
	if path == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
			cfg.Normalize()
			return cfg, nil
		}
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize fills unspecified fields with defaults.
func (c *Config) Normalize() {
	if c.ControlAddr == "" {
		c.ControlAddr = DefaultControlAddr
	}
	if c.HealthIntervalSec <= 0 {
		c.HealthIntervalSec = DefaultHealthIntervalSec
	}
	if c.MemoryIntervalSec <= 0 {
		c.MemoryIntervalSec = DefaultMemoryIntervalSec
	}
	if c.DefaultIdleTimeoutSec <= 0 {
		c.DefaultIdleTimeoutSec = DefaultIdleTimeoutSec
	}
	if c.LoadRetries < 0 {
		c.LoadRetries = 0
	}
	if c.FastTimeoutSec <= 0 {
		c.FastTimeoutSec = DefaultFastTimeoutSec
	}
	if c.SlowTimeoutSec <= 0 {
		c.SlowTimeoutSec = DefaultSlowTimeoutSec
	}
	if c.RemoteLoadTimeoutSec <= 0 {
		c.RemoteLoadTimeoutSec = DefaultRemoteLoadTimeout
	}
	if c.CircuitThreshold <= 0 {
		c.CircuitThreshold = DefaultCircuitThreshold
	}
	if c.CircuitCooldownSec <= 0 {
		c.CircuitCooldownSec = DefaultCircuitCooldownSec
	}
}

// BudgetMB resolves the configured budget to an absolute MB amount. Values
// up to 100 are a percentage of total VRAM; larger values are absolute MB.
// Zero (or a percentage with no known total) means unlimited.
func (c Config) BudgetMB() int {
	if c.VRAMBudget <= 0 {
		return 0
	}
	if c.VRAMBudget <= 100 {
		if c.VRAMTotalMB <= 0 {
			return 0
		}
		return c.VRAMTotalMB * c.VRAMBudget / 100
	}
	return c.VRAMBudget
}
