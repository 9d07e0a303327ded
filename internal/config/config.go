package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// SlogLevel maps LogLevel onto a slog level. Unknown values fall back to info.
func (c AppConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// GhostConfig holds the Ghost Admin API settings.
type GhostConfig struct {
	URL                string `mapstructure:"url"`       // e.g., https://blog.example.com
	AdminKey           string `mapstructure:"admin_key"` // "<id>:<hex secret>"
	Timeout            string `mapstructure:"timeout"`   // duration string, e.g., "20s"
	DisableImageUpload bool   `mapstructure:"disable_image_upload"`
	WebPQuality        int    `mapstructure:"webp_quality"`
	UnsafeHTML         bool   `mapstructure:"unsafe_html"` // pass raw HTML in notes through to Ghost
}

// Validate validates the Ghost configuration.
func (c *GhostConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.By(duration)),
		validation.Field(&c.WebPQuality, validation.Min(1), validation.Max(100)),
	)
}

// RequestTimeout returns the parsed Timeout, or 20s when unset or invalid.
func (c GhostConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// RedisConfig holds redis connection settings. An empty Addr disables publish history.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	HistoryTTL string `mapstructure:"history_ttl"` // e.g., "720h"
}

// Enabled reports whether a redis server is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// TTL returns the parsed HistoryTTL; zero means records never expire.
func (c RedisConfig) TTL() time.Duration {
	d, err := time.ParseDuration(c.HistoryTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// OpenAIConfig controls AI-written excerpts.
type OpenAIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"` // optional
	Language        string `mapstructure:"language"`
	GenerateExcerpt bool   `mapstructure:"generate_excerpt"`
}

// Validate validates the OpenAI configuration.
func (c *OpenAIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.When(c.GenerateExcerpt, validation.Required)),
		validation.Field(&c.Model, validation.When(c.GenerateExcerpt, validation.Required)),
	)
}

// Config is the top-level configuration structure.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Ghost  GhostConfig  `mapstructure:"ghost"`
	Redis  RedisConfig  `mapstructure:"redis"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// Validate checks the settings needed to publish.
func (c *Config) Validate() error {
	if err := c.Ghost.Validate(); err != nil {
		return fmt.Errorf("ghost: %w", err)
	}
	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	return nil
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	c.Ghost.URL = strings.TrimRight(strings.TrimSpace(c.Ghost.URL), "/")
	c.Ghost.AdminKey = strings.TrimSpace(c.Ghost.AdminKey)
	if c.Ghost.Timeout == "" {
		c.Ghost.Timeout = "20s"
	}
	if c.Ghost.WebPQuality == 0 {
		c.Ghost.WebPQuality = 85
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func duration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 20s")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
