// Package config loads Engram kernel configuration from a YAML file with
// environment variable overrides. Environment always wins over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Engram kernel configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Store configuration
	Store StoreConfig `yaml:"store"`

	// HTTP API configuration
	API APIConfig `yaml:"api"`

	// Dual retrieval tuning
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Trust gate configuration
	Trust TrustConfig `yaml:"trust"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the SQLite memory store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// RetrievalConfig configures dual search fusion and packing.
type RetrievalConfig struct {
	BoostWeight float64 `yaml:"boost_weight"` // episodic intersection boost weight
	BoostCap    float64 `yaml:"boost_cap"`    // ceiling on the applied boost
	MaxTokens   int     `yaml:"max_tokens"`   // context packet token budget
	MaxItems    int     `yaml:"max_items"`    // context packet snippet cap
}

// TrustConfig configures the request trust gate.
type TrustConfig struct {
	// ExtraHosts extends the built-in loopback allow set. Deployment-specific.
	ExtraHosts []string `yaml:"extra_hosts"`

	// SessionTTL is the default lifetime of issued capability tokens.
	SessionTTL string `yaml:"session_ttl"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "engram",
		Version: "2.0.0",

		Store: StoreConfig{
			DatabasePath: "data/engram.db",
		},

		API: APIConfig{
			ListenAddr:      "127.0.0.1:8100",
			ShutdownTimeout: "5s",
		},

		Retrieval: RetrievalConfig{
			BoostWeight: 0.22,
			BoostCap:    0.35,
			MaxTokens:   800,
			MaxItems:    8,
		},

		Trust: TrustConfig{
			SessionTTL: "24h",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("ENGRAM_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("ENGRAM_LISTEN_ADDR"); addr != "" {
		c.API.ListenAddr = addr
	}
	if w := parseFloatEnv("ENGRAM_V2_DUAL_INTERSECTION_BOOST_WEIGHT"); w != nil {
		c.Retrieval.BoostWeight = *w
	}
	if cap := parseFloatEnv("ENGRAM_V2_DUAL_INTERSECTION_BOOST_CAP"); cap != nil {
		c.Retrieval.BoostCap = *cap
	}
	if hosts := os.Getenv("ENGRAM_TRUSTED_HOSTS"); hosts != "" {
		c.Trust.ExtraHosts = splitHostList(hosts)
	}
	if level := os.Getenv("ENGRAM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// parseFloatEnv reads a float env var, returning nil on absence or garbage.
func parseFloatEnv(name string) *float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var v float64
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%g", &v); err != nil {
		return nil
	}
	return &v
}

func splitHostList(raw string) []string {
	var hosts []string
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// GetSessionTTL returns the session TTL as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Trust.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetShutdownTimeout returns the HTTP shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.ShutdownTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Retrieval.BoostWeight < 0 || c.Retrieval.BoostWeight > 1 {
		return fmt.Errorf("retrieval.boost_weight must be in [0,1], got %g", c.Retrieval.BoostWeight)
	}
	if c.Retrieval.BoostCap < 0 || c.Retrieval.BoostCap > 1 {
		return fmt.Errorf("retrieval.boost_cap must be in [0,1], got %g", c.Retrieval.BoostCap)
	}
	if c.Retrieval.MaxTokens <= 0 {
		return fmt.Errorf("retrieval.max_tokens must be positive, got %d", c.Retrieval.MaxTokens)
	}
	if c.Retrieval.MaxItems <= 0 {
		return fmt.Errorf("retrieval.max_items must be positive, got %d", c.Retrieval.MaxItems)
	}
	return nil
}
