// Package config loads application configuration from config.yaml plus
// ARGUS_-prefixed environment overrides, and initializes the global zap
// logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/queue"
	"github.com/argus-advisory/advisor-cli/internal/worker"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Worker    worker.Options  `yaml:"worker" mapstructure:"worker"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QueueConfig configures the job queue backend.
type QueueConfig struct {
	// Driver is "memory" or "sqs".
	Driver string           `yaml:"driver" mapstructure:"driver"`
	SQS    queue.SQSOptions `yaml:"sqs" mapstructure:"sqs"`
}

// BlobConfig configures the artifact store backend.
type BlobConfig struct {
	// Driver is "fs" or "s3".
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Root is the filesystem storage directory.
	Root string         `yaml:"root" mapstructure:"root"`
	S3   blob.S3Options `yaml:"s3" mapstructure:"s3"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string          `yaml:"key" mapstructure:"key"`
	Advisor advisor.Options `yaml:"advisor" mapstructure:"advisor"`
}

// NotionConfig holds the optional Notion export settings. Export is
// enabled when both Token and ParentPage are set.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ParentPage string `yaml:"parent_page" mapstructure:"parent_page"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "advisor.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.sqs.region", "us-east-1")
	v.SetDefault("queue.sqs.visibility_timeout", "5m")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.root", "./data")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.advisor.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.advisor.max_tokens", 4096)
	v.SetDefault("anthropic.advisor.requests_per_minute", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.poll_wait", "20s")
	v.SetDefault("worker.error_backoff", "5s")
	v.SetDefault("worker.max_kpis", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
