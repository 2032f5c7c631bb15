package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddress       = "0.0.0.0"
	defaultPort          = 8000
	defaultMetricsAddr   = ":9090"
	defaultRedisURL      = "redis://127.0.0.1:6379/0"
	defaultStoragePrefix = "shrekd"
	defaultDataDir       = "/tmp/shrekd"
	defaultTmpDir        = "/tmp/shrekd/.tmp"
	defaultSlugLength    = 13
	defaultMaxFileSize   = 128_000_000
	defaultMaxPasteSize  = 1_000_000
	defaultMaxURLSize    = 8192
	defaultMinAge        = 7 * 24 * 60 * 60
	defaultMaxAge        = 21 * 24 * 60 * 60
	defaultSweepInterval = time.Hour

	envConfigPath        = "SHREKD_CONFIG"
	envAddress           = "SHREKD_ADDRESS"
	envPort              = "SHREKD_PORT"
	envMetricsAddr       = "SHREKD_METRICS_ADDR"
	envRedisURL          = "SHREKD_REDIS_URL"
	envStoragePrefix     = "SHREKD_STORAGE_PREFIX"
	envDataDir           = "SHREKD_DATA_DIR"
	envTmpDir            = "SHREKD_TMP_DIR"
	envSlugLength        = "SHREKD_SLUG_LENGTH"
	envMaxFileSize       = "SHREKD_MAX_FILE_SIZE"
	envMaxPasteSize      = "SHREKD_MAX_PASTE_SIZE"
	envMaxURLSize        = "SHREKD_MAX_URL_SIZE"
	envMinAge            = "SHREKD_MIN_AGE"
	envMaxAge            = "SHREKD_MAX_AGE"
	envSweepInterval     = "SHREKD_SWEEP_INTERVAL"
	envConfigureKeyspace = "SHREKD_CONFIGURE_KEYSPACE_EVENTS"
	envNatsURL           = "SHREKD_NATS_URL"
)

// Config holds the daemon's runtime configuration. It is built once at
// startup and passed explicitly to every component.
type Config struct {
	Address     string
	Port        int
	MetricsAddr string

	RedisURL      string
	StoragePrefix string

	DataDir string
	TmpDir  string

	SlugLength   uint8
	MaxFileSize  int64
	MaxPasteSize int64
	MaxURLSize   int64

	// MinAge and MaxAge bound the retention curve, in seconds.
	MinAge uint64
	MaxAge uint64

	SweepInterval           time.Duration
	ConfigureKeyspaceEvents bool

	NatsURL string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Address:                 defaultAddress,
		Port:                    defaultPort,
		MetricsAddr:             defaultMetricsAddr,
		RedisURL:                defaultRedisURL,
		StoragePrefix:           defaultStoragePrefix,
		DataDir:                 defaultDataDir,
		TmpDir:                  defaultTmpDir,
		SlugLength:              defaultSlugLength,
		MaxFileSize:             defaultMaxFileSize,
		MaxPasteSize:            defaultMaxPasteSize,
		MaxURLSize:              defaultMaxURLSize,
		MinAge:                  defaultMinAge,
		MaxAge:                  defaultMaxAge,
		SweepInterval:           defaultSweepInterval,
		ConfigureKeyspaceEvents: true,
	}
}

// Load layers defaults, the YAML file at path (or $SHREKD_CONFIG when path is
// empty) and environment variables, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envConfigPath))
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListenAddr is the host:port the HTTP API binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(envAddress); ok {
		c.Address = v
	}
	if v, ok := lookupEnv(envPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return invalid("port", v, err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv(envMetricsAddr); ok {
		c.MetricsAddr = strings.TrimSpace(v)
	}
	if v, ok := lookupEnv(envRedisURL); ok {
		c.RedisURL = v
	}
	if v, ok := lookupEnv(envStoragePrefix); ok {
		c.StoragePrefix = v
	}
	if v, ok := lookupEnv(envDataDir); ok {
		c.DataDir = v
	}
	if v, ok := lookupEnv(envTmpDir); ok {
		c.TmpDir = v
	}
	if v, ok := lookupEnv(envSlugLength); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return invalid("slug_length", v, err)
		}
		c.SlugLength = uint8(n)
	}
	for _, item := range []struct {
		env, field string
		dst        *int64
	}{
		{envMaxFileSize, "max_file_size", &c.MaxFileSize},
		{envMaxPasteSize, "max_paste_size", &c.MaxPasteSize},
		{envMaxURLSize, "max_url_size", &c.MaxURLSize},
	} {
		if v, ok := lookupEnv(item.env); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return invalid(item.field, v, err)
			}
			*item.dst = n
		}
	}
	if v, ok := lookupEnv(envMinAge); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return invalid("min_age", v, err)
		}
		c.MinAge = n
	}
	if v, ok := lookupEnv(envMaxAge); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return invalid("max_age", v, err)
		}
		c.MaxAge = n
	}
	if v, ok := lookupEnv(envSweepInterval); ok {
		d, err := parseInterval(v)
		if err != nil {
			return invalid("sweep_interval", v, err)
		}
		c.SweepInterval = d
	}
	if v, ok := lookupEnv(envConfigureKeyspace); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return invalid("configure_keyspace_events", v, err)
		}
		c.ConfigureKeyspaceEvents = b
	}
	if v, ok := os.LookupEnv(envNatsURL); ok {
		c.NatsURL = strings.TrimSpace(v)
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parseInterval accepts Go durations ("90m") and bare seconds ("0", "3600").
func parseInterval(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
