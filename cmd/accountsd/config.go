package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const accountsSection = "accounts"

type DaemonConfig struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Security SecurityConfig `toml:"security"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	NodeID   int64          `toml:"node_id"`
}

type DatabaseConfig struct {
	DSN           string   `toml:"dsn"`
	Debug         bool     `toml:"debug"`
	PingTimeout   Duration `toml:"ping_timeout"`
	MigrateOnBoot bool     `toml:"migrate_on_boot"`
}

func (c DatabaseConfig) GetDebug() bool { return c.Debug }

func (c DatabaseConfig) GetDriver() string { return "postgres" }

func (c DatabaseConfig) GetServer() string { return c.DSN }

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout.Duration <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout.Duration
}

func (c DatabaseConfig) GetOtelIdentifier() string { return "accounts" }

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type MetricsConfig struct {
	Addr      string `toml:"addr"`
	Namespace string `toml:"namespace"`
}

type SecurityConfig struct {
	KeyEnv            string `toml:"key_env"`
	FingerprintKeyEnv string `toml:"fingerprint_key_env"`
	KeyID             string `toml:"key_id"`
	KeyVersion        int    `toml:"key_version"`
}

type DispatchConfig struct {
	Interval  Duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

type CacheConfig struct {
	TTL Duration `toml:"ttl"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes TOML strings such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("accountsd: invalid duration %q: %w", value, err)
	}
	d.Duration = parsed
	return nil
}

func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Database: DatabaseConfig{MigrateOnBoot: true},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Security: SecurityConfig{
			KeyEnv:            "ACCOUNTS_CONTACT_KEY",
			FingerprintKeyEnv: "ACCOUNTS_FINGERPRINT_KEY",
			KeyID:             "primary",
			KeyVersion:        1,
		},
		Dispatch: DispatchConfig{Interval: Duration{5 * time.Second}},
		Cache:    CacheConfig{TTL: Duration{10 * time.Minute}},
		Log:      LogConfig{Level: "info", Format: "json"},
		NodeID:   1,
	}
}

// LoadDaemonConfig decodes the daemon sections of a TOML file over the
// defaults. The [accounts] section is left to FileConfigLoader.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return DaemonConfig{}, fmt.Errorf("accountsd: decode %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return DaemonConfig{}, fmt.Errorf("accountsd: database.dsn is required")
	}
	return cfg, nil
}

// FileConfigLoader feeds the [accounts] TOML section to the service's cfgx
// config provider.
type FileConfigLoader struct {
	Path string
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	raw := map[string]any{}
	if _, err := toml.DecodeFile(l.Path, &raw); err != nil {
		return nil, fmt.Errorf("accountsd: decode %s: %w", l.Path, err)
	}
	section, ok := raw[accountsSection].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return section, nil
}

func secretFromEnv(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}
