// Package config содержит логику чтения конфигурации сервиса заявок.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress         = "localhost:8080"
	defaultInitialOrderNumber = 10207903
	defaultPaymentTimeout     = 30 * time.Minute
)

// Config содержит параметры конфигурации сервиса заявок.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	BotToken           string        `env:"BOT_TOKEN"`
	TelegramAPIURL     string        `env:"TELEGRAM_API_URL"`
	AdminIDs           []int64       `env:"ADMIN_IDS" envSeparator:","`
	InitialOrderNumber int64         `env:"INITIAL_ORDER_NUMBER" envDefault:"10207903"`
	PaymentTimeout     time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"30m"`
	SecretKey          string        `env:"SECRET_KEY"`
	GatewayToken       string        `env:"GATEWAY_TOKEN"`
	KafkaBrokers       string        `env:"KAFKA_BROKERS"`
	KafkaTopic         string        `env:"KAFKA_TOPIC" envDefault:"orderbot.orders"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBotToken := cfg.BotToken

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBotToken != "" {
		cfg.BotToken = envBotToken
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.InitialOrderNumber <= 0 {
		cfg.InitialOrderNumber = defaultInitialOrderNumber
	}
	if cfg.PaymentTimeout <= 0 {
		return nil, fmt.Errorf("PAYMENT_TIMEOUT must be positive, got %s", cfg.PaymentTimeout)
	}

	return cfg, nil
}
