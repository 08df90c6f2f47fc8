// Package config loads application configuration with Viper from
// config.json, EMPTYFRIDGE_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Providers accepted for llm.provider.
const (
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Pantry  PantryConfig  `mapstructure:"pantry"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig selects and tunes the generative backend.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LocalURL    string        `mapstructure:"local_url"`
	LocalModel  string        `mapstructure:"local_model"`
	Temperature *float64      `mapstructure:"temperature"`
}

// PantryConfig bounds image intake.
type PantryConfig struct {
	MaxWidth  uint `mapstructure:"max_width"`
	MaxPixels int  `mapstructure:"max_pixels"`
	MaxImages int  `mapstructure:"max_images"`
}

// SessionConfig controls the session cookie and idle expiry.
type SessionConfig struct {
	CookieName    string        `mapstructure:"cookie_name"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LogConfig is passed to logger.New.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from configPath, or from config.json in the working
// directory (or ./config) when configPath and EMPTYFRIDGE_CONFIG are empty.
// A missing default file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = os.Getenv("EMPTYFRIDGE_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("EMPTYFRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so bind explicitly for env-only configuration.
	_ = v.BindEnv("llm.temperature")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8081"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "gemini-2.5-flash-lite")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", "45s")
	v.SetDefault("llm.local_url", "http://localhost:1234/v1/chat/completions")
	v.SetDefault("llm.local_model", "gemma-3-12b-it:2")

	v.SetDefault("pantry.max_width", 1024)
	v.SetDefault("pantry.max_pixels", 50_000_000)
	v.SetDefault("pantry.max_images", 10)

	v.SetDefault("session.cookie_name", "fridge_session")
	v.SetDefault("session.idle_ttl", "2h")
	v.SetDefault("session.sweep_interval", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("server.allowed_origins must name at least one origin")
	}

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required for the gemini provider")
		}
	case ProviderLocal:
		if c.LLM.LocalURL == "" {
			return fmt.Errorf("llm.local_url is required for the local provider")
		}
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderGemini, ProviderLocal, c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}

	if c.Pantry.MaxWidth == 0 {
		return fmt.Errorf("pantry.max_width must be positive")
	}
	if c.Pantry.MaxPixels < 1 {
		return fmt.Errorf("pantry.max_pixels must be positive")
	}
	if c.Pantry.MaxImages < 1 {
		return fmt.Errorf("pantry.max_images must be at least 1")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Session.IdleTTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.idle_ttl and session.sweep_interval must be positive")
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// MaxUploadBytes is the multipart memory limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
