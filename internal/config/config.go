// Package config loads client and relay settings from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for both binaries.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Relay   RelayConfig   `yaml:"relay"`
}

// ServerConfig points the client at its backend.
type ServerConfig struct {
	// BaseURL is the REST backend root, e.g. http://localhost:1337.
	BaseURL string `yaml:"base_url"`

	// WSURL is the realtime endpoint. Empty derives it from BaseURL.
	WSURL string `yaml:"ws_url"`
}

// AuthConfig controls token persistence.
type AuthConfig struct {
	// TokenFile overrides the default token location under the user
	// config dir.
	TokenFile string `yaml:"token_file"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RelayConfig configures the development relay binary.
type RelayConfig struct {
	Listen string `yaml:"listen"`
	Secret string `yaml:"secret"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{BaseURL: "http://localhost:1337"},
		Relay:  RelayConfig{Listen: ":1337"},
	}
}

// Load reads the YAML file at path (missing file is not an error), applies
// PAIRCHAT_* env overrides, and fills derived defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Server.WSURL == "" {
		cfg.Server.WSURL = deriveWSURL(cfg.Server.BaseURL)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAIRCHAT_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("PAIRCHAT_WS_URL"); v != "" {
		cfg.Server.WSURL = v
	}
	if v := os.Getenv("PAIRCHAT_TOKEN_FILE"); v != "" {
		cfg.Auth.TokenFile = v
	}
	if v := os.Getenv("PAIRCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PAIRCHAT_RELAY_LISTEN"); v != "" {
		cfg.Relay.Listen = v
	}
	if v := os.Getenv("PAIRCHAT_RELAY_SECRET"); v != "" {
		cfg.Relay.Secret = v
	}
}

// deriveWSURL maps the REST root to the conventional /ws endpoint.
func deriveWSURL(baseURL string) string {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws"
}
