package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "tripbot.yaml"

const devJWTSecret = "local_dev_secret"

var defaults = map[string]any{
	"APP_PORT":             "8080",
	"APP_ENV":              "dev",
	"DATABASE_URL":         "",
	"JWT_SECRET":           devJWTSecret,
	"BOT_TOKEN":            "",
	"TELEGRAM_API_URL":     "https://api.telegram.org",
	"WEBHOOK_URL":          "",
	"WEBHOOK_SECRET":       "",
	"WEBAPP_URL":           "",
	"AUTH_MAX_AGE_SECONDS": 86400,
	"ADMIN_USERNAME":       "",
	"ADMIN_PASSWORD_HASH":  "",
	"AI_API_KEY":           "",
	"AI_BASE_URL":          "https://api.openai.com/v1",
	"AI_MODEL":             "gpt-4o-mini",
	"AMQP_URL":             "",
	"AMQP_QUEUE":           "tripbot.tasks",
	"TASK_WORKERS":         4,
	"TASK_BUFFER":          64,
}

// Load reads configuration from the environment, layered over an optional
// YAML file. An empty path falls back to DefaultFile if it exists.
func Load(path string) (App, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return App{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg App
	if err := v.Unmarshal(&cfg); err != nil {
		return App{}, fmt.Errorf("decode config: %w", err)
	}
	// PaaS hosts inject PORT
	if p := os.Getenv("PORT"); p != "" {
		cfg.Port = p
	}
	return cfg, nil
}

// Validate checks what `serve` needs to start.
func (a App) Validate() error {
	var errs []error
	if a.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if a.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if a.IsProd() {
		if a.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in prod"))
		}
		if a.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in prod"))
		}
		if a.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required in prod"))
		}
	}
	if a.TaskWorkers < 1 {
		errs = append(errs, errors.New("TASK_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}
