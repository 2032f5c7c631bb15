package config

import (
	"fmt"
	"strings"

	configschema "github.com/shrekd/shrekd/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// ConfigError reports configuration that prevents the daemon from starting.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Msg, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func invalid(field, raw string, err error) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf("invalid value %q", raw), Err: err}
}

// Validate checks semantic constraints that the loaders cannot express.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.RedisURL) == "":
		return &ConfigError{Field: "redis_url", Msg: "must not be empty"}
	case c.Port < 1 || c.Port > 65535:
		return &ConfigError{Field: "port", Msg: fmt.Sprintf("%d out of range 1..65535", c.Port)}
	case strings.TrimSpace(c.StoragePrefix) == "":
		return &ConfigError{Field: "storage_prefix", Msg: "must not be empty"}
	case strings.Contains(c.StoragePrefix, ":"):
		return &ConfigError{Field: "storage_prefix", Msg: "must not contain ':'"}
	case strings.TrimSpace(c.DataDir) == "":
		return &ConfigError{Field: "data_dir", Msg: "must not be empty"}
	case strings.TrimSpace(c.TmpDir) == "":
		return &ConfigError{Field: "tmp_dir", Msg: "must not be empty"}
	case c.SlugLength == 0:
		return &ConfigError{Field: "slug_length", Msg: "must be at least 1"}
	case c.MaxFileSize <= 0:
		return &ConfigError{Field: "max_file_size", Msg: "must be positive"}
	case c.MaxPasteSize <= 0:
		return &ConfigError{Field: "max_paste_size", Msg: "must be positive"}
	case c.MaxURLSize <= 0:
		return &ConfigError{Field: "max_url_size", Msg: "must be positive"}
	case c.MinAge > c.MaxAge:
		return &ConfigError{Field: "min_age", Msg: fmt.Sprintf("minimum age %d exceeds maximum age %d", c.MinAge, c.MaxAge)}
	case c.SweepInterval < 0:
		return &ConfigError{Field: "sweep_interval", Msg: "must not be negative"}
	}
	return nil
}

var fileSchema = configschema.MustCompile("shrekd-config", shrekdSchema)

func validateFileSchema(data []byte) error {
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if payload == nil {
		return nil
	}
	return fileSchema.Validate(payload)
}
