// Package config загружает конфигурацию сервисов Cascade.
//
// Источники (по возрастанию приоритета): значения по умолчанию,
// файл cascade.yaml, переменные окружения (STORAGE_DRIVER, DB_URL, ...).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Драйверы хранилища.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// ErrInvalidConfig — недопустимое значение конфигурации.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация cascade-api.
type Config struct {
	// StorageDriver — memory, postgres или redis.
	StorageDriver string `mapstructure:"storage_driver"`

	DBURL         string `mapstructure:"db_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// RabbitMQURL — пустая строка отключает уведомления о завершении run.
	RabbitMQURL string `mapstructure:"rabbitmq_url"`

	APIPort         string        `mapstructure:"api_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Addr возвращает адрес HTTP-сервера.
func (c *Config) Addr() string {
	return ":" + c.APIPort
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage_driver", DriverMemory)
	v.SetDefault("db_url", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("api_port", "8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "json")
}

// Load читает конфигурацию.
//
// path — явный путь к файлу (должен существовать). Пустой path —
// поиск cascade.yaml в текущем каталоге и ./config; отсутствие файла
// не ошибка.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("cascade")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения конфигурации.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.StorageDriver)
	}
	if c.APIPort == "" {
		return fmt.Errorf("%w: api_port is empty", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
