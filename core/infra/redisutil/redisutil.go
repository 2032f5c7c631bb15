package redisutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	envRedisTLSCA         = "SHREKD_REDIS_TLS_CA"
	envRedisTLSCert       = "SHREKD_REDIS_TLS_CERT"
	envRedisTLSKey        = "SHREKD_REDIS_TLS_KEY"
	envRedisTLSInsecure   = "SHREKD_REDIS_TLS_INSECURE"
	envRedisTLSServerName = "SHREKD_REDIS_TLS_SERVER_NAME"

	defaultPingTimeout = 2 * time.Second

	// KeyspaceEventFlags enables keyevent notifications (E) for generic
	// commands such as DEL (g) and for expirations (x).
	KeyspaceEventFlags = "Egx"

	EventExpired = "expired"
	EventDel     = "del"
)

// Connect builds a client from a redis:// URL and verifies it answers PING.
// The returned options carry the selected database index, which keyevent
// channels are scoped to.
func Connect(ctx context.Context, url string) (*redis.Client, *redis.Options, error) {
	opts, err := ParseOptions(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, opts, nil
}

// ParseOptions parses a Redis URL and applies TLS settings from the environment.
func ParseOptions(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := tlsConfigFromEnv(opts.TLSConfig)
	if err != nil {
		return nil, err
	}
	opts.TLSConfig = tlsConfig
	return opts, nil
}

// EnableKeyspaceEvents asks the server to publish generic and expiry keyevents.
// Managed deployments often reject CONFIG; callers decide whether that is fatal.
func EnableKeyspaceEvents(ctx context.Context, client redis.UniversalClient) error {
	if err := client.ConfigSet(ctx, "notify-keyspace-events", KeyspaceEventFlags).Err(); err != nil {
		return fmt.Errorf("enable keyspace events: %w", err)
	}
	return nil
}

// KeyeventChannel returns the pub/sub channel on which the server announces
// the given event for keys of database db.
func KeyeventChannel(db int, event string) string {
	return fmt.Sprintf("__keyevent@%d__:%s", db, event)
}

func tlsConfigFromEnv(existing *tls.Config) (*tls.Config, error) {
	caPath := strings.TrimSpace(os.Getenv(envRedisTLSCA))
	certPath := strings.TrimSpace(os.Getenv(envRedisTLSCert))
	keyPath := strings.TrimSpace(os.Getenv(envRedisTLSKey))
	serverName := strings.TrimSpace(os.Getenv(envRedisTLSServerName))
	insecure := parseBoolEnv(envRedisTLSInsecure)

	if caPath == "" && certPath == "" && keyPath == "" && serverName == "" && !insecure {
		return existing, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if existing != nil {
		cfg = existing.Clone()
	}
	if serverName != "" {
		cfg.ServerName = serverName
	}
	if insecure {
		// #nosec G402 -- operator opt-in for self-signed development setups.
		cfg.InsecureSkipVerify = true
	}

	if caPath != "" {
		// #nosec G304 -- CA path is operator-provided.
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls ca read: %w", err)
		}
		pool := cfg.RootCAs
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if ok := pool.AppendCertsFromPEM(pem); !ok {
			return nil, fmt.Errorf("redis tls ca parse: %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, fmt.Errorf("redis tls cert/key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
