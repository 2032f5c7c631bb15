package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML files; nil fields keep the lower layer.
type fileConfig struct {
	Address                 *string `yaml:"address"`
	Port                    *int    `yaml:"port"`
	MetricsAddr             *string `yaml:"metrics_addr"`
	RedisURL                *string `yaml:"redis_url"`
	StoragePrefix           *string `yaml:"storage_prefix"`
	DataDir                 *string `yaml:"data_dir"`
	TmpDir                  *string `yaml:"tmp_dir"`
	SlugLength              *uint8  `yaml:"slug_length"`
	MaxFileSize             *int64  `yaml:"max_file_size"`
	MaxPasteSize            *int64  `yaml:"max_paste_size"`
	MaxURLSize              *int64  `yaml:"max_url_size"`
	MinAge                  *uint64 `yaml:"min_age"`
	MaxAge                  *uint64 `yaml:"max_age"`
	SweepInterval           *string `yaml:"sweep_interval"`
	ConfigureKeyspaceEvents *bool   `yaml:"configure_keyspace_events"`
	NatsURL                 *string `yaml:"nats_url"`
}

func (c *Config) applyFile(path string) error {
	// #nosec G304 -- config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Field: "config", Msg: fmt.Sprintf("read %s", path), Err: err}
	}
	return c.applyYAML(data)
}

func (c *Config) applyYAML(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := validateFileSchema(data); err != nil {
		return &ConfigError{Field: "config", Msg: "invalid config file", Err: err}
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return &ConfigError{Field: "config", Msg: "parse config file", Err: err}
	}
	setString(&c.Address, fc.Address)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.StoragePrefix, fc.StoragePrefix)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.TmpDir, fc.TmpDir)
	setString(&c.NatsURL, fc.NatsURL)
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.SlugLength != nil {
		c.SlugLength = *fc.SlugLength
	}
	if fc.MaxFileSize != nil {
		c.MaxFileSize = *fc.MaxFileSize
	}
	if fc.MaxPasteSize != nil {
		c.MaxPasteSize = *fc.MaxPasteSize
	}
	if fc.MaxURLSize != nil {
		c.MaxURLSize = *fc.MaxURLSize
	}
	if fc.MinAge != nil {
		c.MinAge = *fc.MinAge
	}
	if fc.MaxAge != nil {
		c.MaxAge = *fc.MaxAge
	}
	if fc.SweepInterval != nil {
		d, err := parseInterval(*fc.SweepInterval)
		if err != nil {
			return invalid("sweep_interval", *fc.SweepInterval, err)
		}
		c.SweepInterval = d
	}
	if fc.ConfigureKeyspaceEvents != nil {
		c.ConfigureKeyspaceEvents = *fc.ConfigureKeyspaceEvents
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
