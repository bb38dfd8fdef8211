package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		for _, a := range s.aliases {
			t.Setenv(a, "")
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 5000 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:5000" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Search.BaseURL != "https://api.tavily.com" || cfg.Search.MaxResults != 5 || cfg.Search.Timeout != 30*time.Second {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Completion.Model != "deepseek-chat" || cfg.Completion.Temperature != 0.7 || cfg.Completion.MaxTokens != 1000 {
		t.Errorf("Completion = %+v", cfg.Completion)
	}
	if cfg.Completion.BaseURL != "https://api.deepseek.com/v1" || cfg.Completion.Timeout != time.Minute {
		t.Errorf("Completion = %+v", cfg.Completion)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Breaker.MaxFailures != 5 || cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("Breaker = %+v", cfg.Breaker)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

// TestMissingSecretsDoNotFail verifies Load succeeds without any API key.
func TestMissingSecretsDoNotFail(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.APIKey != "" || cfg.Completion.APIKey != "" {
		t.Errorf("keys should be empty: %q %q", cfg.Search.APIKey, cfg.Completion.APIKey)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.ints["server.port"] = 6000
	b.strings["completion.model"] = "file-model"

	t.Setenv("ASKWEB_SERVER_PORT", "7000")
	t.Setenv("ASKWEB_COMPLETION_MODEL", "env-model")
	t.Setenv("ASKWEB_SEARCH_TIMEOUT", "5s")
	t.Setenv("ASKWEB_COMPLETION_TEMPERATURE", "0.2")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Completion.Model != "env-model" {
		t.Errorf("Completion.Model = %q", cfg.Completion.Model)
	}
	if cfg.Search.Timeout != 5*time.Second {
		t.Errorf("Search.Timeout = %v", cfg.Search.Timeout)
	}
	if cfg.Completion.Temperature != 0.2 {
		t.Errorf("Completion.Temperature = %v", cfg.Completion.Temperature)
	}
}

func TestEnvBadValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASKWEB_SERVER_PORT", "not-a-port")
	t.Setenv("ASKWEB_BREAKER_TIMEOUT", "soon")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("Breaker.Timeout = %v, want default", cfg.Breaker.Timeout)
	}
}

// TestSecretAliases verifies the canonical secret name wins over its alias.
func TestSecretAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("VITE_TAVILY_API_KEY", "vite-tavily")
	t.Setenv("VITE_DEEPSEEK_API_KEY", "vite-deepseek")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.APIKey != "vite-tavily" || cfg.Completion.APIKey != "vite-deepseek" {
		t.Errorf("alias keys not read: %q %q", cfg.Search.APIKey, cfg.Completion.APIKey)
	}

	t.Setenv("TAVILY_API_KEY", "canonical")
	cfg, _ = loadWith(newMemBackend())
	if cfg.Search.APIKey != "canonical" {
		t.Errorf("Search.APIKey = %q, want canonical", cfg.Search.APIKey)
	}
}

// TestSecretsIgnoredInBackend verifies API keys cannot come from the file.
func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strings["search.api_key"] = "from-file"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.APIKey != "" {
		t.Errorf("Search.APIKey = %q, want empty", cfg.Search.APIKey)
	}
}

// TestFileBackend verifies that all fields are correctly read from a JSON file.
func TestFileBackend(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
		"server.port": 8080,
		"server.cors_origins": "http://a.test, http://b.test",
		"search.max_results": 3,
		"search.timeout": "10s",
		"completion.temperature": 0.3,
		"storage.backend": "sqlite",
		"storage.data_dir": "/tmp/askweb-test",
		"log.format": "json"
	}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if got := cfg.Server.Origins(); len(got) != 2 || got[1] != "http://b.test" {
		t.Errorf("Origins() = %v", got)
	}
	if cfg.Search.MaxResults != 3 || cfg.Search.Timeout != 10*time.Second {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Completion.Temperature != 0.3 {
		t.Errorf("Completion.Temperature = %v", cfg.Completion.Temperature)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.DataDir != "/tmp/askweb-test" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q", cfg.Log.Format)
	}
}

func TestFileBackend_BadInteger(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 80.5}`)

	if _, err := loadWith(newFileBackend(path)); err == nil {
		t.Fatal("expected error for non-integer port")
	}
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		env, value string
	}{
		{"ASKWEB_STORAGE_BACKEND", "postgres"},
		{"ASKWEB_SERVER_PORT", "70000"},
		{"ASKWEB_LOG_FORMAT", "xml"},
		{"ASKWEB_SEARCH_MAX_RESULTS", "50"},
		{"ASKWEB_COMPLETION_TEMPERATURE", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			if _, err := loadWith(newMemBackend()); err == nil {
				t.Errorf("%s=%s should be rejected", tt.env, tt.value)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()

	if err := setKeyWith(b, "server.port", "9000"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if b.ints["server.port"] != 9000 {
		t.Errorf("stored port = %d", b.ints["server.port"])
	}

	if err := setKeyWith(b, "search.timeout", "12s"); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if b.strings["search.timeout"] != "12s" {
		t.Errorf("stored timeout = %q", b.strings["search.timeout"])
	}

	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "storage.backend", "postgres"); err == nil {
		t.Error("expected error for unknown backend")
	}
	if err := setKeyWith(b, "nope", "1"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unknown key error = %v", err)
	}
	err := setKeyWith(b, "search.api_key", "k")
	if err == nil || !strings.Contains(err.Error(), "TAVILY_API_KEY") {
		t.Errorf("secret key error = %v", err)
	}
}

func TestSetKey_FileRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "askweb", "config.json")

	if err := setKeyWith(newFileBackend(path), "completion.max_tokens", "256"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Completion.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", cfg.Completion.MaxTokens)
	}
}

func TestUnsetKey_RestoresDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "askweb", "config.json")

	if err := setKeyWith(newFileBackend(path), "log.level", "debug"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := unsetKeyWith(newFileBackend(path), "log.level"); err != nil {
		t.Fatalf("UnsetKey: %v", err)
	}
	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}

	if err := unsetKeyWith(newFileBackend(path), "search.api_key"); err == nil {
		t.Error("expected error unsetting a secret")
	}
	if err := unsetKeyWith(newFileBackend(path), "nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestFileBackend_MalformedFileFallsBack(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{not json`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != defaults().Server.Port {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Search.APIKey = "tvly-secret"

	for _, info := range ShowAll(cfg) {
		if strings.Contains(info.Value, "tvly-secret") {
			t.Fatalf("secret leaked in %s", info.Key)
		}
		if info.Key == "search.api_key" && info.Value != "(set)" {
			t.Errorf("search.api_key = %q, want (set)", info.Value)
		}
		if info.Key == "completion.api_key" && info.Value != "(not set)" {
			t.Errorf("completion.api_key = %q, want (not set)", info.Value)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	for _, k := range keys {
		if strings.HasSuffix(k, "api_key") || k == "server.token" {
			t.Errorf("secret %q listed as settable", k)
		}
	}
	if len(keys) == 0 || keys[0] > keys[len(keys)-1] {
		t.Errorf("keys not sorted: %v", keys)
	}
}
