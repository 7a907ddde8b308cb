package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings are daemon-level knobs read from the environment. The YAML
// file decides which servers exist; these decide how the process around
// them runs. Command-line flags override them.
type Settings struct {
	// ConfigPath points at the server config file. Empty means search
	// DefaultSearchPaths and create the default file if none exists.
	ConfigPath string `env:"TOOLMUX_CONFIG"`
	// ListenAddr is the operational HTTP listen address.
	ListenAddr string `env:"TOOLMUX_LISTEN_ADDR" envDefault:"127.0.0.1:8900"`
	// AdminToken, when set, is required as a bearer token on every
	// operational HTTP request.
	AdminToken string `env:"TOOLMUX_ADMIN_TOKEN"`

	LogLevel  string `env:"TOOLMUX_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TOOLMUX_LOG_FORMAT" envDefault:"text"`
}

// FromEnv parses Settings from environment variables.
func FromEnv() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
