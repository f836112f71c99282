// Package am holds blogpulse configuration: the Config tree, its defaults,
// layered loading through viper, validation and hot reload.
package am

import "time"

// Config represents the blogpulse configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Server      ServerConfig      `mapstructure:"server" toml:"server" yaml:"server" json:"server"`
	Pulse       PulseConfig       `mapstructure:"pulse" toml:"pulse" yaml:"pulse" json:"pulse"`
	Health      HealthConfig      `mapstructure:"health" toml:"health" yaml:"health" json:"health"`
	OpenRouter  OpenRouterConfig  `mapstructure:"openrouter" toml:"openrouter" yaml:"openrouter" json:"openrouter"`
	HuggingFace HuggingFaceConfig `mapstructure:"huggingface" toml:"huggingface" yaml:"huggingface" json:"huggingface"`
	Content     ContentConfig     `mapstructure:"content" toml:"content" yaml:"content" json:"content"`
}

// Database backends
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DatabaseConfig configures where series, jobs and posts live
type DatabaseConfig struct {
	Path    string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
	Backend string `mapstructure:"backend" toml:"backend" yaml:"backend" json:"backend"` // sqlite | memory
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// DefaultServerPort is used when server.port is not configured
const DefaultServerPort = 8787

// PulseConfig configures the scheduler loop and its retry policy
type PulseConfig struct {
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds" yaml:"ticker_interval_seconds" json:"ticker_interval_seconds"`
	AttemptTimeoutSeconds int `mapstructure:"attempt_timeout_seconds" toml:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds" json:"attempt_timeout_seconds"`
	MaxRetries            int `mapstructure:"max_retries" toml:"max_retries" yaml:"max_retries" json:"max_retries"` // re-attempts after the first call
	RetryBaseSeconds      int `mapstructure:"retry_base_seconds" toml:"retry_base_seconds" yaml:"retry_base_seconds" json:"retry_base_seconds"`
	RetryMaxSeconds       int `mapstructure:"retry_max_seconds" toml:"retry_max_seconds" yaml:"retry_max_seconds" json:"retry_max_seconds"`
	MaxConcurrent         int `mapstructure:"max_concurrent" toml:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`

	// Model spend caps over sliding 24h / 30d windows; 0 means unlimited
	DailyBudgetUSD   float64 `mapstructure:"daily_budget_usd" toml:"daily_budget_usd" yaml:"daily_budget_usd" json:"daily_budget_usd"`
	MonthlyBudgetUSD float64 `mapstructure:"monthly_budget_usd" toml:"monthly_budget_usd" yaml:"monthly_budget_usd" json:"monthly_budget_usd"`
}

// TickInterval returns the ticker interval as a duration
func (p PulseConfig) TickInterval() time.Duration {
	return time.Duration(p.TickerIntervalSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt gateway timeout
func (p PulseConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSeconds) * time.Second
}

// RetryBase returns the first backoff delay
func (p PulseConfig) RetryBase() time.Duration {
	return time.Duration(p.RetryBaseSeconds) * time.Second
}

// RetryMax returns the backoff cap
func (p PulseConfig) RetryMax() time.Duration {
	return time.Duration(p.RetryMaxSeconds) * time.Second
}

// HealthConfig configures queue health classification
type HealthConfig struct {
	WindowHours   int     `mapstructure:"window_hours" toml:"window_hours" yaml:"window_hours" json:"window_hours"`
	WarningRatio  float64 `mapstructure:"warning_ratio" toml:"warning_ratio" yaml:"warning_ratio" json:"warning_ratio"`
	CriticalRatio float64 `mapstructure:"critical_ratio" toml:"critical_ratio" yaml:"critical_ratio" json:"critical_ratio"`
}

// Window returns the trailing health window
func (h HealthConfig) Window() time.Duration {
	return time.Duration(h.WindowHours) * time.Hour
}

// OpenRouterConfig configures OpenRouter.ai API access for blog content
type OpenRouterConfig struct {
	APIKey            string  `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"api_key"`
	Model             string  `mapstructure:"model" toml:"model" yaml:"model" json:"model"`
	Temperature       float64 `mapstructure:"temperature" toml:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens" toml:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	MaxCallsPerMinute int     `mapstructure:"max_calls_per_minute" toml:"max_calls_per_minute" yaml:"max_calls_per_minute" json:"max_calls_per_minute"` // 0 = unlimited
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// HuggingFaceConfig configures image generation
type HuggingFaceConfig struct {
	APIKey string `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"api_key"`
	Model  string `mapstructure:"model" toml:"model" yaml:"model" json:"model"`
}

// ContentConfig shapes generated posts
type ContentConfig struct {
	Brand     string `mapstructure:"brand" toml:"brand" yaml:"brand" json:"brand"` // publisher named in the system prompt
	WordCount int    `mapstructure:"word_count" toml:"word_count" yaml:"word_count" json:"word_count"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
