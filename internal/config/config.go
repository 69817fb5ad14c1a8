package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the settings shared by the server, the worker and the CLI
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	AppName  string `mapstructure:"APP_NAME"`
	AppURL   string `mapstructure:"APP_URL"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`

	SMTPHost  string `mapstructure:"SMTP_HOST"`
	SMTPPort  int    `mapstructure:"SMTP_PORT"`
	SMTPUser  string `mapstructure:"SMTP_USER"`
	SMTPPass  string `mapstructure:"SMTP_PASS"`
	EmailFrom string `mapstructure:"EMAIL_FROM"`

	WahaBaseURL string `mapstructure:"WAHA_BASE_URL"`
	WahaAPIKey  string `mapstructure:"WAHA_API_KEY"`
	// Prefix for local numbers starting with 0
	WahaCountryCode string `mapstructure:"WAHA_COUNTRY_CODE"`

	PaypalBaseURL  string        `mapstructure:"PAYPAL_BASE_URL"`
	PaypalClientID string        `mapstructure:"PAYPAL_CLIENT_ID"`
	PaypalSecret   string        `mapstructure:"PAYPAL_SECRET"`
	PaypalTimeout  time.Duration `mapstructure:"PAYPAL_TIMEOUT"`

	// Base64 encoded 32 byte key sealing instructor gateway secrets.
	SecretBoxKey string `mapstructure:"SECRET_BOX_KEY"`

	WorkerTick          string `mapstructure:"WORKER_TICK"`
	BankTransferDetails string `mapstructure:"BANK_TRANSFER_DETAILS"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`
}

var keys = []string{
	"APP_ENV", "APP_NAME", "APP_URL", "PORT", "LOG_LEVEL",
	"DATABASE_URL", "REDIS_URL", "FIREBASE_CREDENTIALS_PATH",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "EMAIL_FROM",
	"WAHA_BASE_URL", "WAHA_API_KEY", "WAHA_COUNTRY_CODE",
	"PAYPAL_BASE_URL", "PAYPAL_CLIENT_ID", "PAYPAL_SECRET", "PAYPAL_TIMEOUT",
	"SECRET_BOX_KEY", "WORKER_TICK", "BANK_TRANSFER_DETAILS", "DEFAULT_CURRENCY",
}

// Load reads .env (if any) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment")
	}

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_NAME", "Course Platform")
	viper.SetDefault("APP_URL", "http://localhost:8080")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("WAHA_BASE_URL", "http://waha:3000")
	viper.SetDefault("WAHA_COUNTRY_CODE", "62")
	viper.SetDefault("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("PAYPAL_TIMEOUT", "15s")
	viper.SetDefault("WORKER_TICK", "@every 1m")
	viper.SetDefault("DEFAULT_CURRENCY", "USD")
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	return &cfg, nil
}

// IsProduction reports whether the process runs with production settings
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ConfigureLogging applies the log level and format to the global logrus logger
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
