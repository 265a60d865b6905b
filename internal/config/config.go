// Package config provides configuration loading, validation, and management
// for the MOTD bot. It reads a YAML file plus BOT_* environment variables,
// applies defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components:
// logging, Telegram transport, AI provider, message generation, database, and
// scheduled tasks.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds Telegram credentials and destination settings.
type TelegramConfig struct {
	Token     string `mapstructure:"token"      validate:"required"`
	ChannelID string `mapstructure:"channel_id" validate:"required"` // "@channel" or numeric chat ID
	AdminID   int64  `mapstructure:"admin_id"   validate:"required,gt=0"`
}

// AIConfig holds provider settings for text and embedding generation.
type AIConfig struct {
	Backend        string        `mapstructure:"backend"         validate:"oneof=openai gemini"`
	Token          string        `mapstructure:"token"           validate:"required"`
	BaseURL        string        `mapstructure:"base_url"        validate:"omitempty,url"`
	Model          string        `mapstructure:"model"           validate:"required"`
	EmbeddingModel string        `mapstructure:"embedding_model" validate:"required"`
	Temperature    float32       `mapstructure:"temperature"     validate:"min=0,max=2"`
	MaxTokens      int           `mapstructure:"max_tokens"      validate:"min=1"`
	Timeout        time.Duration `mapstructure:"timeout"         validate:"min=1s,max=10m"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"min=0,max=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     validate:"min=0"`
}

// GeneratorConfig controls the daily-message generation episode:
// persona inputs, history windows, and the uniqueness policy.
type GeneratorConfig struct {
	PersonaFile         string  `mapstructure:"persona_file"`
	PostsFile           string  `mapstructure:"posts_file"`
	Timezone            string  `mapstructure:"timezone"             validate:"required"`
	HistoryDays         int     `mapstructure:"history_days"         validate:"min=1"`
	SimilarityDays      int     `mapstructure:"similarity_days"      validate:"min=1"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
	MaxAttempts         int     `mapstructure:"max_attempts"         validate:"min=1,max=20"`
	DryRun              bool    `mapstructure:"dry_run"`
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig maps task names to their cron schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a scheduled task and sets its cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given YAML file (optional),
// environment variables prefixed with BOT_, and built-in defaults.
// Returns the validated configuration or an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("ai.backend", "openai")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "gpt-4")
	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.temperature", 0.8)
	v.SetDefault("ai.max_tokens", 300)
	v.SetDefault("ai.timeout", 2*time.Minute)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay", 5*time.Second)

	v.SetDefault("generator.persona_file", "data/persona.md")
	v.SetDefault("generator.posts_file", "data/posts.json")
	v.SetDefault("generator.timezone", "UTC")
	v.SetDefault("generator.history_days", 365)
	v.SetDefault("generator.similarity_days", 90)
	v.SetDefault("generator.similarity_threshold", 0.85)
	v.SetDefault("generator.max_attempts", 5)
	v.SetDefault("generator.dry_run", false)

	v.SetDefault("database.path", "motd.db")

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"daily_post":      {Enabled: true, Schedule: "0 9 * * *"},
		"sql_maintenance": {Enabled: true, Schedule: "0 3 * * 0"},
	})
}
