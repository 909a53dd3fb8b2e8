// Package config loads relay command settings from an optional YAML file,
// RELAY_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every setting's environment variable, e.g.
// RELAY_MODEL or RELAY_MAX_TOKENS.
const EnvPrefix = "RELAY"

// Config holds the settings for one command invocation.
type Config struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   *float64      `mapstructure:"temperature"`
	HeaderTimeout time.Duration `mapstructure:"header_timeout"`
	LogLevel      string        `mapstructure:"log_level"`
	Render        bool          `mapstructure:"render"`
	Keys          Keys          `mapstructure:"keys"`
}

// Keys holds the API keys found under each provider's conventional
// environment variable.
type Keys struct {
	OpenAI    string `mapstructure:"openai"`
	Anthropic string `mapstructure:"anthropic"`
	Gemini    string `mapstructure:"gemini"`
}

var keyEnv = map[string]string{
	"keys.openai":    "OPENAI_API_KEY",
	"keys.anthropic": "ANTHROPIC_API_KEY",
	"keys.gemini":    "GEMINI_API_KEY",
}

// New returns a viper instance with defaults and environment bindings in
// place. Callers may bind flags to it before calling [LoadFrom].
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("provider", "")
	v.SetDefault("model", "")
	v.SetDefault("base_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("system_prompt", "")
	v.SetDefault("max_tokens", 0)
	v.SetDefault("header_timeout", "60s")
	v.SetDefault("log_level", "warn")
	v.SetDefault("render", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// No default, so Unmarshal only sees it once bound.
	_ = v.BindEnv("temperature")
	for key, env := range keyEnv {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads settings from the YAML file at path and the environment.
// An empty path searches relay.yaml in the working directory and in
// $HOME/.config/relay, and a missing file there is not an error.
func Load(path string) (*Config, error) {
	return LoadFrom(New(), path)
}

// LoadFrom is [Load] on a caller-prepared viper instance.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/relay")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that no provider would accept.
func (c *Config) Validate() error {
	if c.MaxTokens < 0 {
		return fmt.Errorf("config: max_tokens must be non-negative, got %d", c.MaxTokens)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("config: temperature must be in [0, 2], got %g", *c.Temperature)
	}
	if c.HeaderTimeout < 0 {
		return fmt.Errorf("config: header_timeout must be non-negative, got %s", c.HeaderTimeout)
	}
	return nil
}

func describe(path string) string {
	if path == "" {
		return "relay.yaml"
	}
	return path
}
