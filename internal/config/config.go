// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Presence drivers.
const (
	PresenceStore = "store"
	PresenceRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Presence PresenceConfig `mapstructure:"presence"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Arena    ArenaConfig    `mapstructure:"arena"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	InfoFile        string        `mapstructure:"info_file"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	DataDir         string `mapstructure:"data_dir"`
	TolerateCorrupt bool   `mapstructure:"tolerate_corrupt"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns host:port.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PresenceConfig selects where online users are tracked.
// IdleTimeout of zero keeps rows until logout.
type PresenceConfig struct {
	Driver      string        `mapstructure:"driver"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig holds session token configuration.
type AuthConfig struct {
	Enforce    bool          `mapstructure:"enforce"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// ArenaConfig holds battle scoring configuration.
type ArenaConfig struct {
	DailyLimit int     `mapstructure:"daily_limit"`
	WinPoints  float64 `mapstructure:"win_points"`
	LosePoints float64 `mapstructure:"lose_points"`
	Timezone   string  `mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to time.Local.
func (a *ArenaConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid arena timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// CatalogConfig holds Pokémon API client configuration.
type CatalogConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxID          int           `mapstructure:"max_id"`
	BotAttempts    int           `mapstructure:"bot_attempts"`
	HydrateWorkers int           `mapstructure:"hydrate_workers"`
	PageSize       int           `mapstructure:"page_size"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. SERVER_PORT, STORAGE_DRIVER, AUTH_JWT_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
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

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.info_file", "data/info.json")
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.tolerate_corrupt", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arena")
	v.SetDefault("database.name", "arena")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "10s")

	v.SetDefault("presence.driver", PresenceStore)
	v.SetDefault("presence.idle_timeout", "0s")

	v.SetDefault("auth.enforce", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("arena.daily_limit", 5)
	v.SetDefault("arena.win_points", 10)
	v.SetDefault("arena.lose_points", 3)
	v.SetDefault("arena.timezone", "Local")

	v.SetDefault("catalog.base_url", "https://pokeapi.co/api/v2")
	v.SetDefault("catalog.timeout", "8s")
	v.SetDefault("catalog.max_id", 1010)
	v.SetDefault("catalog.bot_attempts", 6)
	v.SetDefault("catalog.hydrate_workers", 4)
	v.SetDefault("catalog.page_size", 12)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageFile, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == StorageFile && c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required for the file driver"))
	}

	switch c.Presence.Driver {
	case PresenceStore, PresenceRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown presence driver %q", c.Presence.Driver))
	}
	if c.Presence.IdleTimeout < 0 {
		errs = append(errs, errors.New("presence.idle_timeout must not be negative"))
	}

	if c.Auth.Enforce && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth.enforce is true"))
	}

	if c.Arena.DailyLimit <= 0 {
		errs = append(errs, errors.New("arena.daily_limit must be positive"))
	}
	if c.Arena.WinPoints < 0 || c.Arena.LosePoints < 0 {
		errs = append(errs, errors.New("arena points must not be negative"))
	}
	if _, err := c.Arena.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Catalog.MaxID < 1 {
		errs = append(errs, errors.New("catalog.max_id must be at least 1"))
	}
	if c.Catalog.BotAttempts < 1 {
		errs = append(errs, errors.New("catalog.bot_attempts must be at least 1"))
	}
	if c.Catalog.HydrateWorkers < 1 {
		errs = append(errs, errors.New("catalog.hydrate_workers must be at least 1"))
	}

	return errors.Join(errs...)
}
