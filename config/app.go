package config

import "time"

type App struct {
	Port        string `mapstructure:"app_port"`
	Env         string `mapstructure:"app_env"`
	DatabaseURL string `mapstructure:"database_url"`
	JWTSecret   string `mapstructure:"jwt_secret"`

	BotToken       string `mapstructure:"bot_token"`
	TelegramAPIURL string `mapstructure:"telegram_api_url"`
	WebhookURL     string `mapstructure:"webhook_url"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	WebAppURL      string `mapstructure:"webapp_url"`
	// AuthMaxAgeSeconds bounds launch-data age; 0 disables the check.
	AuthMaxAgeSeconds int `mapstructure:"auth_max_age_seconds"`

	AdminUsername     string `mapstructure:"admin_username"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	AIAPIKey  string `mapstructure:"ai_api_key"`
	AIBaseURL string `mapstructure:"ai_base_url"`
	AIModel   string `mapstructure:"ai_model"`

	AMQPURL     string `mapstructure:"amqp_url"`
	AMQPQueue   string `mapstructure:"amqp_queue"`
	TaskWorkers int    `mapstructure:"task_workers"`
	TaskBuffer  int    `mapstructure:"task_buffer"`
}

func (a App) AuthMaxAge() time.Duration {
	return time.Duration(a.AuthMaxAgeSeconds) * time.Second
}

func (a App) IsProd() bool { return a.Env == "prod" }
