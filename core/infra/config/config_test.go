package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shrekd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != defaultPort || cfg.Address != defaultAddress {
		t.Fatalf("unexpected listen defaults: %s", cfg.ListenAddr())
	}
	if cfg.SlugLength != 13 {
		t.Fatalf("expected slug length 13, got %d", cfg.SlugLength)
	}
	if cfg.MaxFileSize != 128_000_000 || cfg.MaxPasteSize != 1_000_000 {
		t.Fatalf("unexpected size limits: %d %d", cfg.MaxFileSize, cfg.MaxPasteSize)
	}
	if cfg.StoragePrefix != "shrekd" {
		t.Fatalf("unexpected prefix %q", cfg.StoragePrefix)
	}
	if !cfg.ConfigureKeyspaceEvents {
		t.Fatalf("expected keyspace events to be configured by default")
	}
	if cfg.ListenAddr() != "0.0.0.0:8000" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envPort, "9001")
	t.Setenv(envRedisURL, "redis://cache:6379/3")
	t.Setenv(envSlugLength, "20")
	t.Setenv(envMaxFileSize, "2048")
	t.Setenv(envSweepInterval, "15m")
	t.Setenv(envConfigureKeyspace, "false")
	t.Setenv(envNatsURL, "nats://bus:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9001 || cfg.RedisURL != "redis://cache:6379/3" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.SlugLength != 20 || cfg.MaxFileSize != 2048 {
		t.Fatalf("unexpected numeric overrides: %+v", cfg)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval)
	}
	if cfg.ConfigureKeyspaceEvents {
		t.Fatalf("expected keyspace configuration disabled")
	}
	if cfg.NatsURL != "nats://bus:4222" {
		t.Fatalf("unexpected nats url %q", cfg.NatsURL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
port: 7000
storage_prefix: paste
min_age: 60
max_age: 3600
sweep_interval: "120"
`)
	t.Setenv(envConfigPath, "")
	t.Setenv(envPort, "7100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7100 {
		t.Fatalf("env should win over file, got port %d", cfg.Port)
	}
	if cfg.StoragePrefix != "paste" || cfg.MinAge != 60 || cfg.MaxAge != 3600 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.SweepInterval != 2*time.Minute {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval)
	}
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "slug_length: 8\n")
	t.Setenv(envConfigPath, path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SlugLength != 8 {
		t.Fatalf("expected slug length from file, got %d", cfg.SlugLength)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	path := writeConfig(t, "listen_port: 8000\n")
	t.Setenv(envConfigPath, "")
	_, err := Load(path)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid config file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	t.Setenv(envConfigPath, "")
	for name, body := range map[string]string{
		"port type":   "port: eighty\n",
		"prefix":      "storage_prefix: \"a:b\"\n",
		"redis":       "redis_url: http://localhost\n",
		"slug length": "slug_length: 0\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(envConfigPath, "")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envPort, "http")
	_, err := Load("")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "port" {
		t.Fatalf("expected port ConfigError, got %v", err)
	}
}

func TestValidateAgeBounds(t *testing.T) {
	cfg := Default()
	cfg.MinAge = 100
	cfg.MaxAge = 10
	err := cfg.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "min_age" {
		t.Fatalf("expected min_age error, got %v", err)
	}

	cfg.MinAge = 10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestValidateRejectsEmptyFields(t *testing.T) {
	mutations := map[string]func(*Config){
		"redis_url":      func(c *Config) { c.RedisURL = " " },
		"port":           func(c *Config) { c.Port = 0 },
		"storage_prefix": func(c *Config) { c.StoragePrefix = "" },
		"data_dir":       func(c *Config) { c.DataDir = "" },
		"slug_length":    func(c *Config) { c.SlugLength = 0 },
		"max_paste_size": func(c *Config) { c.MaxPasteSize = 0 },
	}
	for field, mutate := range mutations {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != field {
			t.Fatalf("%s: expected ConfigError, got %v", field, err)
		}
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"0":     0,
		"30":    30 * time.Second,
		"1h":    time.Hour,
		"250ms": 250 * time.Millisecond,
	}
	for raw, want := range cases {
		got, err := parseInterval(raw)
		if err != nil || got != want {
			t.Fatalf("parseInterval(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}
	if _, err := parseInterval("soon"); err == nil {
		t.Fatalf("expected error for invalid interval")
	}
}
