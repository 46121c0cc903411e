/**
 * @description
 * Configuration management for the gifting-service.
 * Settings come from environment variables (and an optional .env file loaded by main),
 * with defaults for the reveal schedule and collaborator timeouts.
 */
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gifting service.
type Config struct {
	ServerPort               string        `mapstructure:"SERVER_PORT"`
	DatabaseURL              string        `mapstructure:"DATABASE_URL"`
	AutoMigrate              bool          `mapstructure:"AUTO_MIGRATE"`
	InternalAPIKey           string        `mapstructure:"INTERNAL_API_KEY"`
	ClerkJWKSURL             string        `mapstructure:"CLERK_JWKS_URL"`
	AudioServiceURL          string        `mapstructure:"AUDIO_SERVICE_URL"`
	AudioServiceAPIKey       string        `mapstructure:"AUDIO_SERVICE_API_KEY"`
	AudioDurationSeconds     int           `mapstructure:"AUDIO_DURATION_SECONDS"`
	ContentGenerationTimeout time.Duration `mapstructure:"CONTENT_GENERATION_TIMEOUT"`
	PostPublishTimeout       time.Duration `mapstructure:"POST_PUBLISH_TIMEOUT"`
	RevealPassSchedule       string        `mapstructure:"REVEAL_PASS_SCHEDULE"`
	RevealBatchSize          int           `mapstructure:"REVEAL_BATCH_SIZE"`
	RevealClaimLease         time.Duration `mapstructure:"REVEAL_CLAIM_LEASE"`
	RabbitMQURL              string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange           string        `mapstructure:"EVENTS_EXCHANGE"`
	RedisURL                 string        `mapstructure:"REDIS_URL"`
	RedisLockPrefix          string        `mapstructure:"REDIS_LOCK_PREFIX"`
	LogLevel                 string        `mapstructure:"LOG_LEVEL"`
	LogFormat                string        `mapstructure:"LOG_FORMAT"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("AUDIO_DURATION_SECONDS", 30)
	viper.SetDefault("CONTENT_GENERATION_TIMEOUT", "45s")
	viper.SetDefault("POST_PUBLISH_TIMEOUT", "10s")
	viper.SetDefault("REVEAL_PASS_SCHEDULE", "*/15 * * * *") // Every 15 minutes.
	viper.SetDefault("REVEAL_BATCH_SIZE", 100)
	viper.SetDefault("REVEAL_CLAIM_LEASE", "10m")
	viper.SetDefault("EVENTS_EXCHANGE", "joiedevivre.events")
	viper.SetDefault("REDIS_LOCK_PREFIX", "joiedevivre:lock")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "SERVICE_ROLE_KEY")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("AUDIO_SERVICE_URL")
	_ = viper.BindEnv("AUDIO_SERVICE_API_KEY")
	_ = viper.BindEnv("AUDIO_DURATION_SECONDS")
	_ = viper.BindEnv("CONTENT_GENERATION_TIMEOUT")
	_ = viper.BindEnv("POST_PUBLISH_TIMEOUT")
	_ = viper.BindEnv("REVEAL_PASS_SCHEDULE")
	_ = viper.BindEnv("REVEAL_BATCH_SIZE")
	_ = viper.BindEnv("REVEAL_CLAIM_LEASE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("LOG_FORMAT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RevealPassSchedule = strings.TrimSpace(config.RevealPassSchedule)
	if strings.EqualFold(config.RevealPassSchedule, "off") {
		// The pass is then triggered only through POST /surprise-reveal-pass.
		config.RevealPassSchedule = ""
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be configured")
	}
	if config.InternalAPIKey == "" {
		return nil, errors.New("INTERNAL_API_KEY must be configured")
	}

	if config.AudioDurationSeconds <= 0 {
		config.AudioDurationSeconds = 30
	}
	if config.ContentGenerationTimeout <= 0 {
		config.ContentGenerationTimeout = 45 * time.Second
	}
	if config.PostPublishTimeout <= 0 {
		config.PostPublishTimeout = 10 * time.Second
	}
	if config.RevealBatchSize <= 0 {
		config.RevealBatchSize = 100
	}
	if config.RevealClaimLease <= 0 {
		config.RevealClaimLease = 10 * time.Minute
	}
	// The claim is renewed before audio generation and again before publishing,
	// so a single fund's slowest stretch must fit inside one lease.
	if config.RevealClaimLease < config.FundRevealBudget() {
		return nil, fmt.Errorf("REVEAL_CLAIM_LEASE (%s) must be at least CONTENT_GENERATION_TIMEOUT + POST_PUBLISH_TIMEOUT (%s)",
			config.RevealClaimLease, config.FundRevealBudget())
	}

	return &config, nil
}

// FundRevealBudget bounds the time one fund's reveal cascade can spend in collaborators.
func (c Config) FundRevealBudget() time.Duration {
	return c.ContentGenerationTimeout + c.PostPublishTimeout
}

// RevealPassBudget bounds a whole pass over a full batch of claimed funds.
func (c Config) RevealPassBudget() time.Duration {
	return time.Duration(c.RevealBatchSize) * c.FundRevealBudget()
}
