package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database
	v.SetDefault("database.path", "blogpulse.db")
	v.SetDefault("database.backend", BackendSQLite)

	// Server
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	// Pulse
	v.SetDefault("pulse.ticker_interval_seconds", 60)
	v.SetDefault("pulse.attempt_timeout_seconds", 60)
	v.SetDefault("pulse.max_retries", 3)
	v.SetDefault("pulse.retry_base_seconds", 30)
	v.SetDefault("pulse.retry_max_seconds", 600)
	v.SetDefault("pulse.max_concurrent", 16)
	v.SetDefault("pulse.daily_budget_usd", 0.0)
	v.SetDefault("pulse.monthly_budget_usd", 0.0)

	// Health
	v.SetDefault("health.window_hours", 24)
	v.SetDefault("health.warning_ratio", 0.10)
	v.SetDefault("health.critical_ratio", 0.50)

	// OpenRouter
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.7)
	v.SetDefault("openrouter.max_tokens", 2500)
	v.SetDefault("openrouter.max_calls_per_minute", 20)
	v.SetDefault("openrouter.timeout_seconds", 120)

	// Hugging Face
	v.SetDefault("huggingface.model", "stabilityai/stable-diffusion-xl-base-1.0")

	// Content
	v.SetDefault("content.word_count", 1500)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "BLOGPULSE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("huggingface.api_key", "BLOGPULSE_HUGGINGFACE_API_KEY", "HUGGINGFACE_API_KEY")
	v.BindEnv("database.path", "BLOGPULSE_DATABASE_PATH")
}

// DefaultConfig returns the configuration produced by SetDefaults alone
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal
		panic(err)
	}
	return cfg
}

// String returns a short representation of the config without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s (%s), Server: {Port: %d}, Pulse: {Interval: %ds, MaxRetries: %d}}",
		c.Database.Path, c.Database.Backend, c.Server.Port, c.Pulse.TickerIntervalSeconds, c.Pulse.MaxRetries)
}
