// Package config loads the broker's configuration from the environment
// (optionally a config file) into one immutable struct handed to each
// component at startup. Missing required settings are a startup error,
// never a per-request one.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all broker configuration.
type Config struct {
	HTTPAddress string

	// Provider credentials.
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleOAuthCallback string

	// External identity provider.
	IdentityURL        string
	IdentityServiceKey string

	// Frontend base URL for the post-auth redirect and CORS origin.
	FrontendBaseURL string

	// Persistence.
	MongoURI      string
	MongoDatabase string
	RedisAddr     string // optional; when set the state store moves to Redis
}

// Load reads configuration from environment variables with an optional
// leadbroker_config.yaml fallback.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("MongoDatabase", "leadclient")
	v.SetDefault("FrontendBaseURL", "/")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":         "HTTP_ADDRESS",
		"GoogleClientID":      "GOOGLE_CLIENT_ID",
		"GoogleClientSecret":  "GOOGLE_CLIENT_SECRET",
		"GoogleOAuthCallback": "GOOGLE_OAUTH_CALLBACK",
		"IdentityURL":         "IDENTITY_URL",
		"IdentityServiceKey":  "IDENTITY_SERVICE_KEY",
		"FrontendBaseURL":     "FRONTEND_BASE_URL",
		"MongoURI":            "MONGO_URI",
		"MongoDatabase":       "MONGO_DATABASE",
		"RedisAddr":           "REDIS_ADDR",
	}
	for key, envVar := range envMappings {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", envVar, err)
		}
	}

	v.SetConfigName("leadbroker_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		slog.Debug("config file not found, using environment")
	} else {
		slog.Info("using config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks the settings both OAuth endpoints cannot run without.
func validate(cfg *Config) error {
	var missing []string
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if cfg.GoogleOAuthCallback == "" {
		missing = append(missing, "GOOGLE_OAUTH_CALLBACK")
	}
	if cfg.IdentityURL == "" {
		missing = append(missing, "IDENTITY_URL")
	}
	if cfg.IdentityServiceKey == "" {
		missing = append(missing, "IDENTITY_SERVICE_KEY")
	}
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
