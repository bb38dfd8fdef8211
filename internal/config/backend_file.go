package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

const appDirName = "askweb"

// xdgDir resolves an XDG base directory, falling back to fallback under $HOME.
func xdgDir(env string, fallback ...string) (string, bool) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDirName), true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(append(append([]string{home}, fallback...), appDirName)...), true
}

func defaultDataDir() string {
	if dir, ok := xdgDir("XDG_DATA_HOME", ".local", "share"); ok {
		return dir
	}
	return appDirName + "-data"
}

func configFilePath() string {
	if dir, ok := xdgDir("XDG_CONFIG_HOME", ".config"); ok {
		return filepath.Join(dir, "config.json")
	}
	return filepath.Join(".", appDirName, "config.json")
}

// fileBackend keeps settings in a flat JSON object keyed by dotted names,
// e.g. {"server.port": 5000, "log.level": "debug"}.
type fileBackend struct {
	path   string
	values map[string]any
}

// newFileBackend reads path if it exists. An unreadable or malformed file is
// reported on stderr and treated as empty so the defaults still apply.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]any{}}
	if err := b.read(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	return b
}

func (b *fileBackend) read() error {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", b.path, err)
	}
	if err := json.Unmarshal(raw, &b.values); err != nil {
		b.values = map[string]any{}
		return fmt.Errorf("could not parse config file %s: %w", b.path, err)
	}
	return nil
}

// write replaces the file atomically so a crash never leaves half a config.
func (b *fileBackend) write() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case float64:
		// JSON numbers decode as float64; durations and temperatures may be
		// written by hand as numbers.
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	default:
		return "", true, fmt.Errorf("%s: unsupported value %v", key, v)
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, val)
		}
		return int(val), true, nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unsupported value %v", key, v)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.values[key] = val
	return b.write()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.values[key] = val
	return b.write()
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.write()
}
