// Package config loads the daemon configuration from .wisp/config.json
// with WISP_* environment overrides, and the workspace manifest wisp.toml.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete daemon configuration.
type Config struct {
	Version       int               `json:"version" mapstructure:"version"`
	WorkspaceRoot string            `json:"workspaceRoot" mapstructure:"workspaceRoot"`
	Transport     TransportConfig   `json:"transport" mapstructure:"transport"`
	Pool          PoolConfig        `json:"pool" mapstructure:"pool"`
	Cache         CacheConfig       `json:"cache" mapstructure:"cache"`
	Debounce      DebounceConfig    `json:"debounce" mapstructure:"debounce"`
	Watcher       WatcherConfig     `json:"watcher" mapstructure:"watcher"`
	Provider      ProviderConfig    `json:"provider" mapstructure:"provider"`
	Scip          ScipConfig        `json:"scip" mapstructure:"scip"`
	Maintenance   MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`
	Logging       LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// TransportConfig selects how editors reach the daemon.
type TransportConfig struct {
	Mode        string `json:"mode" mapstructure:"mode"` // "stdio" or "tcp"
	Addr        string `json:"addr" mapstructure:"addr"`
	AuthEnabled bool   `json:"authEnabled" mapstructure:"authEnabled"`
}

// PoolConfig sizes the dispatcher.
type PoolConfig struct {
	Workers    int `json:"workers" mapstructure:"workers"`
	QueueDepth int `json:"queueDepth" mapstructure:"queueDepth"`
	TimeoutMs  int `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// CacheConfig sizes the response cache.
type CacheConfig struct {
	TTLSeconds int  `json:"ttlSeconds" mapstructure:"ttlSeconds"`
	Capacity   int  `json:"capacity" mapstructure:"capacity"`
	Persistent bool `json:"persistent" mapstructure:"persistent"`
}

// DebounceConfig sets the mutation coalescing window.
type DebounceConfig struct {
	WindowMs int `json:"windowMs" mapstructure:"windowMs"`
}

// WatcherConfig controls the filesystem watcher.
type WatcherConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Ignore  []string `json:"ignore" mapstructure:"ignore"`
}

// ProviderConfig selects the embedding backend.
type ProviderConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // "local" or "openai"
	BaseURL string `json:"baseUrl" mapstructure:"baseUrl"`
	Model   string `json:"model" mapstructure:"model"`
	// APIKey is read from WISP_PROVIDER_APIKEY, never stored in the file.
	APIKey string `json:"-" mapstructure:"apikey"`
}

// ScipConfig points at an optional SCIP index for seeding.
type ScipConfig struct {
	IndexPath string `json:"indexPath" mapstructure:"indexPath"`
}

// MaintenanceConfig times the background sweep.
type MaintenanceConfig struct {
	IntervalSeconds int `json:"intervalSeconds" mapstructure:"intervalSeconds"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the defaults for a workspace root.
func DefaultConfig(workspaceRoot string) *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: workspaceRoot,
		Transport: TransportConfig{
			Mode: "stdio",
			Addr: "127.0.0.1:7421",
		},
		Pool: PoolConfig{
			Workers:    4,
			QueueDepth: 64,
			TimeoutMs:  2000,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			Capacity:   512,
			Persistent: true,
		},
		Debounce: DebounceConfig{
			WindowMs: 200,
		},
		Watcher: WatcherConfig{
			Enabled: true,
			Ignore:  []string{".git", ".wisp", "node_modules", "vendor", "build"},
		},
		Provider: ProviderConfig{
			Backend: "local",
		},
		Maintenance: MaintenanceConfig{
			IntervalSeconds: 60,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads .wisp/config.json under workspaceRoot, falling back to
// defaults when absent. Environment variables override file values, e.g.
// WISP_POOL_WORKERS or WISP_LOGGING_LEVEL.
func Load(workspaceRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig(workspaceRoot)
	v.SetDefault("version", defaults.Version)
	v.SetDefault("workspaceRoot", workspaceRoot)
	v.SetDefault("transport.mode", defaults.Transport.Mode)
	v.SetDefault("transport.addr", defaults.Transport.Addr)
	v.SetDefault("pool.workers", defaults.Pool.Workers)
	v.SetDefault("pool.queueDepth", defaults.Pool.QueueDepth)
	v.SetDefault("pool.timeoutMs", defaults.Pool.TimeoutMs)
	v.SetDefault("cache.ttlSeconds", defaults.Cache.TTLSeconds)
	v.SetDefault("cache.capacity", defaults.Cache.Capacity)
	v.SetDefault("cache.persistent", defaults.Cache.Persistent)
	v.SetDefault("debounce.windowMs", defaults.Debounce.WindowMs)
	v.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	v.SetDefault("watcher.ignore", defaults.Watcher.Ignore)
	v.SetDefault("provider.backend", defaults.Provider.Backend)
	v.SetDefault("maintenance.intervalSeconds", defaults.Maintenance.IntervalSeconds)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetEnvPrefix("WISP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, ".wisp"))

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to .wisp/config.json.
func (c *Config) Save() error {
	dir := filepath.Join(c.WorkspaceRoot, ".wisp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Transport.Mode != "stdio" && c.Transport.Mode != "tcp" {
		return fmt.Errorf("transport.mode must be stdio or tcp, got %q", c.Transport.Mode)
	}
	if c.Transport.Mode == "tcp" && c.Transport.Addr == "" {
		return fmt.Errorf("transport.addr required for tcp mode")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Pool.QueueDepth <= 0 {
		return fmt.Errorf("pool.queueDepth must be positive, got %d", c.Pool.QueueDepth)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttlSeconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Debounce.WindowMs <= 0 {
		return fmt.Errorf("debounce.windowMs must be positive, got %d", c.Debounce.WindowMs)
	}
	switch c.Provider.Backend {
	case "local", "openai":
	default:
		return fmt.Errorf("provider.backend must be local or openai, got %q", c.Provider.Backend)
	}
	return nil
}
