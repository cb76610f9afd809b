package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig builds a Config from defaults, then the YAML file at filePath
// (missing file is fine), then .env and process environment.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка парсинга .yaml файла: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}
	applyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("невалидная конфигурация: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("SERVER_ADDRESS", &cfg.Server.Address)
	set("APP_ENV", &cfg.Server.Environment)
	set("STORE_BACKEND", &cfg.Store.Backend)
	set("DATABASE_DRIVER", &cfg.Database.Driver)
	set("DATABASE_CONNECTION_URL", &cfg.Database.ConnectionString)
	set("REDIS_ADDR", &cfg.Redis.Addr)
	set("REDIS_PASSWORD", &cfg.Redis.Password)
	set("JWT_SECRET", &cfg.JWT.AccessSecret)
	set("JWT_REFRESH_SECRET", &cfg.JWT.RefreshSecret)
	set("ADMIN_USERNAME", &cfg.Admin.Username)
	set("ADMIN_PASSWORD", &cfg.Admin.Password)
	set("ADMIN_PASSWORD_HASH", &cfg.Admin.PasswordHash)
	set("WEBHOOK_URL", &cfg.Webhook.URL)

	if v, ok := lookup("ALLOW_RECORD_RECOVERY"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Session.AllowRecordRecovery = &b
		}
	}
}
