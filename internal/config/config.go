// Package config loads server configuration from defaults, an optional YAML
// file, a .env file and TRIPSPLIT_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TRIPSPLIT"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the server.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	SQLite   SQLiteConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	CORSOrigins string
	StaticPath  string
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string
}

type SQLiteConfig struct {
	Path string
}

// PostgresConfig holds database configuration. DSN wins over the
// individual fields when set.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", 8080)
	v.SetDefault("Server.CORSOrigins", "*")
	v.SetDefault("Server.StaticPath", "")

	v.SetDefault("Store.Driver", DriverSQLite)
	v.SetDefault("SQLite.Path", "./data/trips.db")

	v.SetDefault("Postgres.DSN", "")
	v.SetDefault("Postgres.Host", "localhost")
	v.SetDefault("Postgres.Port", 5432)
	v.SetDefault("Postgres.User", "postgres")
	v.SetDefault("Postgres.Password", "")
	v.SetDefault("Postgres.DBName", "tripsplit")
	v.SetDefault("Postgres.SSLMode", "disable")
	v.SetDefault("Postgres.MaxConns", 10)

	v.SetDefault("Auth.JWTSecret", "")
	v.SetDefault("Auth.TokenTTL", 30*24*time.Hour)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "text")
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and the environment are used. A .env file in the working
// directory is loaded if present. The returned Config has been validated.
func Load(configPath string) (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite path is required"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.DBName == "") {
			errs = append(errs, errors.New("postgres configuration is incomplete"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
