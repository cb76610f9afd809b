package config

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Session  SessionConfig  `yaml:"session"`
	Admin    AdminConfig    `yaml:"admin"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	Environment    string        `yaml:"environment"`
	SecureCookies  *bool         `yaml:"secure_cookies"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects the refresh record backend: postgres, redis or memory.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DatabaseConfig struct {
	Driver           string `yaml:"driver"`
	ConnectionString string `yaml:"connection_string"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type JWTConfig struct {
	AccessSecret    string        `yaml:"access_secret"`
	RefreshSecret   string        `yaml:"refresh_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

type SessionConfig struct {
	// AllowRecordRecovery re-creates a missing refresh record for a token
	// that still verifies. Every recovery is logged and counted.
	AllowRecordRecovery *bool `yaml:"allow_record_recovery"`
}

type AdminConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Default returns the development configuration every loaded file is laid over.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			Environment:    "development",
			RequestTimeout: 3 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendPostgres,
			SweepInterval: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "catalog",
		},
		JWT: JWTConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// CookiesSecure defaults to true in production unless set explicitly.
func (c *Config) CookiesSecure() bool {
	if c.Server.SecureCookies != nil {
		return *c.Server.SecureCookies
	}
	return c.IsProduction()
}

func (c *Config) RecoveryEnabled() bool {
	if c.Session.AllowRecordRecovery != nil {
		return *c.Session.AllowRecordRecovery
	}
	return true
}

func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt access and refresh secrets are required"))
	} else if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt access and refresh secrets must differ"))
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl values must be positive"))
	}
	if c.Admin.Username == "" {
		errs = append(errs, errors.New("admin username is required"))
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("admin password or password_hash is required"))
	}
	if c.Admin.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Admin.PasswordHash)); err != nil {
			errs = append(errs, fmt.Errorf("admin password_hash is not a bcrypt hash: %w", err))
		}
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.ConnectionString == "" {
			errs = append(errs, errors.New("database connection_string is required for the postgres backend"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis addr is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	return errors.Join(errs...)
}
