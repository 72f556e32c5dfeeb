// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config loads process configuration via viper, following the
// same env-file-plus-env-var convention as the rest of the platform.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PostgresConfig mirrors the platform's configs.PostgresConfig shape.
type PostgresConfig struct {
	Host            string `mapstructure:"host" validate:"required"`
	Port            int    `mapstructure:"port" validate:"required"`
	DBName          string `mapstructure:"db_name" validate:"required"`
	User            string `mapstructure:"auth__user" validate:"required"`
	Password        string `mapstructure:"auth__password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConn     int    `mapstructure:"max_open_connection"`
	MaxIdleConn     int    `mapstructure:"max_ideal_connection"`
	UseSQLiteMemory bool   `mapstructure:"use_sqlite_memory"`
}

// RedisConfig mirrors the platform's configs.RedisConfig shape. Address
// empty means the scheduler falls back to an in-process mutex per
// campaign (single-node dispatch lease, spec §5/§9).
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SpeechConfig carries the ElevenLabs-style STT/TTS credential keys named
// in spec §6's Configuration table.
type SpeechConfig struct {
	APIKey     string `mapstructure:"api_key"`
	WebhookURL string `mapstructure:"webhook__url"`
}

// AppConfig is the process-wide configuration, unmarshalled once at
// startup and validated with go-playground/validator.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	PublicURL            string `mapstructure:"public_url"`
	DefaultCallerID      string `mapstructure:"default_caller_id"`
	WebhookSigningSecret string `mapstructure:"webhook_signing_secret"`

	DispatchTickSeconds int `mapstructure:"dispatch_tick_seconds"`

	Postgres PostgresConfig `mapstructure:"postgres" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Speech   SpeechConfig   `mapstructure:"elevenlabs"`

	TwilioAccountSID string `mapstructure:"twilio__account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio__auth_token"`

	VonageApplicationID string `mapstructure:"vonage__application_id"`
	VonagePrivateKey    string `mapstructure:"vonage__private_key"`

	GoogleProjectID          string `mapstructure:"google__project_id"`
	GoogleServiceAccountJSON string `mapstructure:"google__service_account_json"`

	DeepgramAPIKey string `mapstructure:"deepgram__api_key"`

	OpenAIAPIKey string `mapstructure:"openai__api_key"`
	OpenAIModel  string `mapstructure:"openai__model"`

	MediaListenAddr string `mapstructure:"media_listen_addr"`
}

// InitConfig reads .env (or $ENV_PATH) plus environment variables into a
// *viper.Viper, applying defaults first.
func InitConfig() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("config: reading env file from %s", path)
		v.SetConfigFile(path)
	}
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no env file found, relying on environment variables: %v", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "voicecampaign-worker")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("PUBLIC_URL", "")
	v.SetDefault("DEFAULT_CALLER_ID", "")
	v.SetDefault("WEBHOOK_SIGNING_SECRET", "default-secret")
	v.SetDefault("DISPATCH_TICK_SECONDS", 2)

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "voicecampaign")
	v.SetDefault("POSTGRES__AUTH__USER", "voicecampaign")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")
	v.SetDefault("POSTGRES__USE_SQLITE_MEMORY", false)

	v.SetDefault("REDIS__ADDRESS", "")
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("ELEVENLABS__API_KEY", "")
	v.SetDefault("ELEVENLABS__WEBHOOK__URL", "")

	v.SetDefault("TWILIO__ACCOUNT_SID", "")
	v.SetDefault("TWILIO__AUTH_TOKEN", "")

	v.SetDefault("VONAGE__APPLICATION_ID", "")
	v.SetDefault("VONAGE__PRIVATE_KEY", "")

	v.SetDefault("GOOGLE__PROJECT_ID", "")
	v.SetDefault("GOOGLE__SERVICE_ACCOUNT_JSON", "")

	v.SetDefault("DEEPGRAM__API_KEY", "")

	v.SetDefault("OPENAI__API_KEY", "")
	v.SetDefault("OPENAI__MODEL", "gpt-4o-mini")

	v.SetDefault("MEDIA_LISTEN_ADDR", ":8081")
}

// GetApplicationConfig unmarshals and validates the process configuration.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// HasSpeechCredentials reports whether enough configuration is present to
// enable STT for new audio bridge sessions (spec §4.2 / §7: missing
// credentials at init is a Provider Permanent error, never a hard abort).
func (c *AppConfig) HasSpeechCredentials() bool {
	return c.Speech.APIKey != "" && c.Speech.WebhookURL != ""
}

// SigningSecret returns the webhook HMAC key, defaulting to the literal
// "default-secret" with a caller-side warning responsibility (spec §6).
func (c *AppConfig) SigningSecret() string {
	if c.WebhookSigningSecret == "" {
		return "default-secret"
	}
	return c.WebhookSigningSecret
}
