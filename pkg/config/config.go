// Package config loads application configuration via Viper
// (environment variables, optionally a config file).
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups the application configuration.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	HTTP   HTTPConfig
	Ledger LedgerConfig
	Sweep  SweepConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig holds PostgreSQL settings.
// If DatabaseURL is set it is used as the full connection string.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
}

// ConnectionString returns the DSN: DatabaseURL when set, a built one otherwise.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds a PostgreSQL connection string with URL encoding for
// special characters in credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// RedisConfig holds the read-side snapshot cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// SnapshotTTL bounds staleness of cached stock/lot snapshots.
	SnapshotTTL time.Duration
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// HTTPConfig holds server settings.
type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LedgerConfig holds ledger behavior settings.
type LedgerConfig struct {
	// LockTimeout bounds per-key lock acquisition before the ledger
	// returns CONCURRENT_MODIFICATION.
	LockTimeout time.Duration
	// BaseCurrencyCode is the ISO code of the accounting currency.
	BaseCurrencyCode string
}

// SweepConfig holds expiration sweep settings.
type SweepConfig struct {
	Interval          time.Duration
	LowStockInterval  time.Duration
	LowStockThreshold int
}

// Load reads configuration from environment (prefix LEDGER_) and an
// optional config file passed via LEDGER_CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("app.env"),
			Name:     v.GetString("app.name"),
			LogLevel: v.GetString("app.log_level"),
		},
		DB: DBConfig{
			DatabaseURL: v.GetString("db.url"),
			Host:        v.GetString("db.host"),
			Port:        v.GetInt("db.port"),
			User:        v.GetString("db.user"),
			Password:    v.GetString("db.password"),
			DBName:      v.GetString("db.name"),
			SSLMode:     v.GetString("db.sslmode"),
			MaxConns:    int32(v.GetInt("db.max_conns")),
			MinConns:    int32(v.GetInt("db.min_conns")),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("redis.addr"),
			Password:    v.GetString("redis.password"),
			DB:          v.GetInt("redis.db"),
			SnapshotTTL: v.GetDuration("redis.snapshot_ttl"),
		},
		JWT: JWTConfig{
			Secret:   v.GetString("jwt.secret"),
			Issuer:   v.GetString("jwt.issuer"),
			TokenTTL: v.GetDuration("jwt.token_ttl"),
		},
		HTTP: HTTPConfig{
			Port:         v.GetString("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Ledger: LedgerConfig{
			LockTimeout:      v.GetDuration("ledger.lock_timeout"),
			BaseCurrencyCode: v.GetString("ledger.base_currency"),
		},
		Sweep: SweepConfig{
			Interval:          v.GetDuration("sweep.interval"),
			LowStockInterval:  v.GetDuration("sweep.low_stock_interval"),
			LowStockThreshold: v.GetInt("sweep.low_stock_threshold"),
		},
	}

	if cfg.App.Env == "production" && cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required in production")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "stockledger")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "stockledger")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 25)
	v.SetDefault("db.min_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.snapshot_ttl", 30*time.Second)

	v.SetDefault("jwt.issuer", "stockledger")
	v.SetDefault("jwt.token_ttl", 8*time.Hour)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("ledger.lock_timeout", 5*time.Second)
	v.SetDefault("ledger.base_currency", "PYG")

	v.SetDefault("sweep.interval", time.Hour)
	v.SetDefault("sweep.low_stock_interval", 30*time.Minute)
	v.SetDefault("sweep.low_stock_threshold", 10)
}
