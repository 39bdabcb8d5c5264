package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TWEAKER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.write_timeout", typ: kString, env: "TWEAKER_SERVER_WRITE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.WriteTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.WriteTimeout },
	},
	{
		key: "server.max_clients", typ: kInt, env: "TWEAKER_SERVER_MAX_CLIENTS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxClients = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxClients },
	},
	{
		key: "store.path", typ: kString, env: "TWEAKER_STORE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Store.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.Path },
	},
	{
		key: "store.autosave_interval", typ: kString, env: "TWEAKER_STORE_AUTOSAVE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Store.AutosaveInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.AutosaveInterval },
	},
	{
		key: "store.watch", typ: kBool, env: "TWEAKER_STORE_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Store.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Store.Watch },
	},
	{
		key: "http.port", typ: kInt, env: "TWEAKER_HTTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.HTTP.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.HTTP.Port },
	},
	{
		key: "http.token", typ: kString, env: "TWEAKER_HTTP_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.HTTP.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.HTTP.Token },
	},
	{
		key: "http.mcp_enabled", typ: kBool, env: "TWEAKER_HTTP_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.HTTP.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.HTTP.MCPEnabled },
	},
	{
		key: "log.level", typ: kString, env: "TWEAKER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "TWEAKER_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
