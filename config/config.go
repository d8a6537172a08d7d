// Package config loads the engine configuration with layered sources:
// built-in defaults, then an optional YAML file, then ZIEOOK_*
// environment variables, later layers winning.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ZIEOOK_CONFIG"

var defaultPaths = []string{
	"zieook.yaml",
	"zieook.yml",
	"/etc/zieook/config.yaml",
}

type Config struct {
	// Dir holds the per-tenant and system databases.
	Dir string `koanf:"dir"`
	// SyncWrites makes every write wait for the WAL.
	SyncWrites bool `koanf:"sync_writes"`
	// SamplerSeed pins the recommendation sampler, 0 means time-seeded.
	SamplerSeed int64 `koanf:"sampler_seed"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`

	Metrics struct {
		Enabled bool   `koanf:"enabled"`
		Addr    string `koanf:"addr"`
	} `koanf:"metrics"`
}

func defaults() Config {
	var c Config
	c.Dir = "/var/lib/zieook"
	c.Log.Level = "info"
	c.Metrics.Addr = ":9090"
	return c
}

// Load reads the layered configuration. Koanf unmarshals only the keys
// a layer provides, so the defaults survive where a file or env var
// stays silent.
func Load() (Config, error) {
	k := koanf.New(".")

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	// ZIEOOK_SYNC_WRITES -> sync_writes, ZIEOOK_LOG_LEVEL -> log.level
	if err := k.Load(env.Provider("ZIEOOK_", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("config: dir must not be empty")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Level resolves the configured log level. Validate has already
// rejected unknown names.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps ZIEOOK_* variables onto config paths. Two-level
// keys use the section name as the first word; everything else stays a
// flat snake_case key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "ZIEOOK_"))
	for _, section := range []string{"log", "metrics"} {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}
