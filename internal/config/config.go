package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance   Binance   `mapstructure:"binance"`
	Paper     Paper     `mapstructure:"paper"`
	Executor  Executor  `mapstructure:"executor"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Binance holds the configuration for the Binance price feeds.
type Binance struct {
	Testnet        bool          `mapstructure:"testnet"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
	StreamURL      string        `mapstructure:"stream_url"`
	PriceMaxAge    time.Duration `mapstructure:"price_max_age"`
}

// Paper holds the paper account settings.
type Paper struct {
	StartingBalance float64 `mapstructure:"starting_balance"`
	QuoteCurrency   string  `mapstructure:"quote_currency"`
}

// Executor holds the bot tick execution settings.
type Executor struct {
	ErrorThreshold int           `mapstructure:"error_threshold"`
	OracleTimeout  time.Duration `mapstructure:"oracle_timeout"`
	SlippageRate   float64       `mapstructure:"slippage_rate"`
	BalanceRetries int           `mapstructure:"balance_retries"`
}

// Scheduler holds the tick dispatcher settings.
type Scheduler struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.stream_enabled", false)
	v.SetDefault("binance.stream_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.price_max_age", "10s")

	v.SetDefault("paper.starting_balance", 10000)
	v.SetDefault("paper.quote_currency", "USDT")

	v.SetDefault("executor.error_threshold", 5)
	v.SetDefault("executor.oracle_timeout", "5s")
	v.SetDefault("executor.slippage_rate", 0.001)
	v.SetDefault("executor.balance_retries", 3)

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.tick_timeout", "30s")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "paper.db")
}
