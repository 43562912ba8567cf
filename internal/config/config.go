// Package config загружает конфигурацию dagflow.
//
// Источники (по возрастанию приоритета):
//   - значения по умолчанию
//   - файл dagflow.yaml в текущем каталоге или ./config
//   - переменные окружения (HTTP_ADDR, DB_URL, RABBITMQ_URL, ...)
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Имя файла конфигурации (без расширения).
const configName = "dagflow"

// Ключи конфигурации. Совпадают с именами переменных окружения в нижнем регистре.
const (
	keyHTTPAddr           = "http_addr"
	keyDBURL              = "db_url"
	keyRabbitMQURL        = "rabbitmq_url"
	keyLogLevel           = "log_level"
	keyLogFormat          = "log_format"
	keyWorkflowsDir       = "workflows_dir"
	keyExecutionRetention = "execution_retention"
	keyDefaultHandler     = "default_handler"
	keyCronTriggers       = "cron_triggers"
	keyShutdownTimeout    = "shutdown_timeout"
)

// Config — конфигурация сервера dagflow.
type Config struct {
	// HTTPAddr — адрес HTTP API.
	HTTPAddr string `mapstructure:"http_addr"`

	// DBURL — PostgreSQL DSN. Пустой — определения только из файлов и шаблонов.
	DBURL string `mapstructure:"db_url"`

	// RabbitMQURL — AMQP URL. Пустой — без event-триггеров и публикации событий.
	RabbitMQURL string `mapstructure:"rabbitmq_url"`

	// LogLevel — DEBUG, INFO, WARN, ERROR.
	LogLevel string `mapstructure:"log_level"`

	// LogFormat — json или text.
	LogFormat string `mapstructure:"log_format"`

	// WorkflowsDir — каталог с YAML/JSON определениями workflow.
	WorkflowsDir string `mapstructure:"workflows_dir"`

	// ExecutionRetention — сколько завершённых execution хранить в памяти
	// (отрицательное — без ограничения).
	ExecutionRetention int `mapstructure:"execution_retention"`

	// DefaultHandler — обработчик шагов без config.handler.
	DefaultHandler string `mapstructure:"default_handler"`

	// CronTriggers — запускать workflow по триггерам type: schedule.
	CronTriggers bool `mapstructure:"cron_triggers"`

	// ShutdownTimeout — время на graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load читает конфигурацию из файла и окружения.
//
// paths — каталоги поиска dagflow.yaml; по умолчанию "." и "./config".
// Отсутствие файла не ошибка.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults задаёт значения по умолчанию.
// Каждый ключ должен иметь default, иначе AutomaticEnv не увидит его в Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault(keyHTTPAddr, ":8080")
	v.SetDefault(keyDBURL, "")
	v.SetDefault(keyRabbitMQURL, "")
	v.SetDefault(keyLogLevel, "INFO")
	v.SetDefault(keyLogFormat, "json")
	v.SetDefault(keyWorkflowsDir, "")
	v.SetDefault(keyExecutionRetention, 1000)
	v.SetDefault(keyDefaultHandler, "noop")
	v.SetDefault(keyCronTriggers, true)
	v.SetDefault(keyShutdownTimeout, 30*time.Second)
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr is empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format must be json or text, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
