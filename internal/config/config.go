package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Config struct {
	Server     ServerConfig
	Search     SearchConfig
	Completion CompletionConfig
	Storage    StorageConfig
	Breaker    BreakerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins string
	// Token guards /api routes when non-empty. Environment only.
	Token string
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Origins splits the comma-separated CORS origin list.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type SearchConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

type CompletionConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type BreakerConfig struct {
	MaxFailures int
	Timeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        5000,
			CORSOrigins: "http://localhost:5173",
		},
		Search: SearchConfig{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
			Timeout:    30 * time.Second,
		},
		Completion: CompletionConfig{
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			DataDir: defaultDataDir(),
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/askweb/config.json, then applies environment overrides
// (ASKWEB_*). API keys are read from the environment only and may be empty;
// the clients report a missing key when they are first used.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. It never looks at secrets.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validation.ValidateStruct(&c.Search,
		validation.Field(&c.Search.BaseURL, validation.Required),
		validation.Field(&c.Search.MaxResults, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&c.Search.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := validation.ValidateStruct(&c.Completion,
		validation.Field(&c.Completion.BaseURL, validation.Required),
		validation.Field(&c.Completion.Model, validation.Required),
		validation.Field(&c.Completion.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.Completion.MaxTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.Completion.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Backend, validation.Required, validation.In("memory", "sqlite")),
	); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := validation.ValidateStruct(&c.Breaker,
		validation.Field(&c.Breaker.MaxFailures, validation.Required, validation.Min(1)),
		validation.Field(&c.Breaker.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	if err := validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Log.Format, validation.In("text", "json")),
	); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
