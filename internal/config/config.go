package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server ServerConfig
	Store  StoreConfig
	HTTP   HTTPConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port         int
	WriteTimeout string
	MaxClients   int
}

type StoreConfig struct {
	Path             string
	AutosaveInterval string
	Watch            bool
}

type HTTPConfig struct {
	Port       int
	Token      string
	MCPEnabled bool
}

type LogConfig struct {
	Level string
	File  string
}

// NotifyAddr is the loopback address of the notification server.
func (c Config) NotifyAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Server.Port)
}

// HTTPAddr is the loopback address of the management API.
func (c Config) HTTPAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.HTTP.Port)
}

// WriteTimeout parses Server.WriteTimeout. An empty value means no timeout.
func (c Config) WriteTimeout() (time.Duration, error) {
	if c.Server.WriteTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid server.write_timeout %q: %w", c.Server.WriteTimeout, err)
	}
	return d, nil
}

// AutosaveInterval parses Store.AutosaveInterval. Zero disables autosave.
func (c Config) AutosaveInterval() (time.Duration, error) {
	if c.Store.AutosaveInterval == "" || c.Store.AutosaveInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Store.AutosaveInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid store.autosave_interval %q", c.Store.AutosaveInterval)
	}
	return d, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 44448,
		},
		Store: StoreConfig{
			Path:             filepath.Join(defaultDataDir(), "tweaker.json"),
			AutosaveInterval: "30s",
			Watch:            true,
		},
		HTTP: HTTPConfig{
			Port:       44449,
			MCPEnabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.tweaker.app).
// Elsewhere it is a JSON file at $XDG_CONFIG_HOME/tweaker/config.json.
//
// Environment variables (TWEAKER_*) override backend values on all platforms.
// Secrets such as the HTTP token are only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", cfg.HTTP.Port)
	}
	if cfg.Server.MaxClients < 0 {
		return fmt.Errorf("invalid server.max_clients %d", cfg.Server.MaxClients)
	}
	if _, err := cfg.WriteTimeout(); err != nil {
		return err
	}
	if _, err := cfg.AutosaveInterval(); err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("missing required config: store.path")
	}
	return nil
}
