package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// aliases are older env names still honoured after env.
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "ASKWEB_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "ASKWEB_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kString, env: "ASKWEB_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "server.token", typ: kString, env: "ASKWEB_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "search.api_key", typ: kString, env: "TAVILY_API_KEY",
		aliases: []string{"VITE_TAVILY_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "search.base_url", typ: kString, env: "ASKWEB_SEARCH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Search.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.BaseURL },
	},
	{
		key: "search.max_results", typ: kInt, env: "ASKWEB_SEARCH_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxResults },
	},
	{
		key: "search.timeout", typ: kDuration, env: "ASKWEB_SEARCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Search.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Search.Timeout },
	},
	{
		key: "completion.api_key", typ: kString, env: "DEEPSEEK_API_KEY",
		aliases: []string{"VITE_DEEPSEEK_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "completion.base_url", typ: kString, env: "ASKWEB_COMPLETION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.model", typ: kString, env: "ASKWEB_COMPLETION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.temperature", typ: kFloat, env: "ASKWEB_COMPLETION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Completion.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Completion.Temperature },
	},
	{
		key: "completion.max_tokens", typ: kInt, env: "ASKWEB_COMPLETION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Completion.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Completion.MaxTokens },
	},
	{
		key: "completion.timeout", typ: kDuration, env: "ASKWEB_COMPLETION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Completion.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Completion.Timeout },
	},
	{
		key: "storage.backend", typ: kString, env: "ASKWEB_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASKWEB_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "breaker.max_failures", typ: kInt, env: "ASKWEB_BREAKER_MAX_FAILURES",
		apply:   func(cfg *Config, v any) { cfg.Breaker.MaxFailures = v.(int) },
		extract: func(cfg Config) any { return cfg.Breaker.MaxFailures },
	},
	{
		key: "breaker.timeout", typ: kDuration, env: "ASKWEB_BREAKER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Breaker.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Breaker.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "ASKWEB_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "ASKWEB_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
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
		case kBool, kFloat, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := parseValue(s.typ, v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				continue
			}
			s.apply(cfg, parsed)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		parsed, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, parsed)
	}
}

// lookupEnv returns the first non-empty variable among the key's env name
// and its aliases.
func lookupEnv(s keySpec) (name, value string) {
	for _, n := range append([]string{s.env}, s.aliases...) {
		if n == "" {
			continue
		}
		if v := os.Getenv(n); v != "" {
			return n, v
		}
	}
	return "", ""
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
