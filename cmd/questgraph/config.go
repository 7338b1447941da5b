package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/AaronLay10/questgraph/internal/config"
)

func newEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// loadConfig reads engine.yaml, falling back to defaults when the file does
// not exist, then applies flag and environment overrides.
func loadConfig() (*config.EngineConfig, error) {
	cfg, err := config.LoadEngineConfig(cfgFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if v := viper.GetString("graph"); v != "" {
		cfg.Graph = v
	}
	if v := viper.GetString("log.level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log.format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetInt("api.port"); v != 0 {
		cfg.API.Port = v
	}
	if v := viper.GetString("mqtt.url"); v != "" {
		cfg.MQTT.URL = v
		cfg.MQTT.Enabled = true
	}
	if viper.IsSet("postgres.enabled") {
		cfg.Postgres.Enabled = viper.GetBool("postgres.enabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Graph == "" {
		return nil, fmt.Errorf("no graph file: set graph in %s or pass --graph", cfgFile)
	}
	return cfg, nil
}
