package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/questgraph/internal/storage/postgres"
)

// EngineConfig is the engine.yaml file read at startup.
type EngineConfig struct {
	Version     int           `yaml:"version"`
	Graph       string        `yaml:"graph"`
	CheckPeriod time.Duration `yaml:"check_period"`
	WatchGraph  bool          `yaml:"watch_graph"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		ClientID string `yaml:"client_id"`
		Prefix   string `yaml:"prefix"`
		Optional bool   `yaml:"optional"`
	} `yaml:"mqtt"`

	Postgres struct {
		Enabled          bool `yaml:"enabled"`
		Optional         bool `yaml:"optional"`
		postgres.Options `yaml:",inline"`
	} `yaml:"postgres"`
}

// Default returns a config with every default applied.
func Default() *EngineConfig {
	cfg := &EngineConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *EngineConfig) applyDefaults() {
	if c.CheckPeriod == 0 {
		c.CheckPeriod = 100 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "questgraph"
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "questgraph"
	}
}

// Validate reports settings that cannot work.
func (c *EngineConfig) Validate() error {
	if c.CheckPeriod < 0 {
		return fmt.Errorf("check_period must be positive, got %s", c.CheckPeriod)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port out of range: %d", c.API.Port)
	}
	return nil
}

// PostgresOptions returns the journal connection settings with the password
// resolved from QUESTGRAPH_PG_PASSWORD (or its *_FILE variant).
func (c *EngineConfig) PostgresOptions() (postgres.Options, error) {
	opts := c.Postgres.Options
	pass, err := ResolveSecret(SecretPGPassword)
	if err != nil {
		return opts, err
	}
	opts.Password = pass
	return opts, nil
}

// LoadEngineConfig reads, defaults and validates an engine config file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported engine.yaml version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}
