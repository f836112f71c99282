package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/itgyani/blogpulse/errors"
)

// Validate checks that the configuration is usable by the daemon
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path cannot be empty for the sqlite backend")
		}
	case BackendMemory:
	default:
		return errors.Newf("database.backend must be %q or %q, got %q", BackendSQLite, BackendMemory, c.Database.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	// Zero interval disables the periodic loop (ticks only on demand)
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.AttemptTimeoutSeconds <= 0 {
		return errors.Newf("pulse.attempt_timeout_seconds must be > 0, got %d", c.Pulse.AttemptTimeoutSeconds)
	}
	if c.Pulse.MaxRetries < 0 {
		return errors.Newf("pulse.max_retries must be >= 0, got %d", c.Pulse.MaxRetries)
	}
	if c.Pulse.RetryBaseSeconds < 0 {
		return errors.Newf("pulse.retry_base_seconds must be >= 0, got %d", c.Pulse.RetryBaseSeconds)
	}
	if c.Pulse.RetryMaxSeconds < c.Pulse.RetryBaseSeconds {
		return errors.Newf("pulse.retry_max_seconds (%d) must be >= pulse.retry_base_seconds (%d)",
			c.Pulse.RetryMaxSeconds, c.Pulse.RetryBaseSeconds)
	}
	if c.Pulse.MaxConcurrent <= 0 {
		return errors.Newf("pulse.max_concurrent must be > 0, got %d", c.Pulse.MaxConcurrent)
	}

	if c.Pulse.DailyBudgetUSD < 0 || c.Pulse.MonthlyBudgetUSD < 0 {
		return errors.Newf("pulse budgets must be >= 0, got daily %g and monthly %g",
			c.Pulse.DailyBudgetUSD, c.Pulse.MonthlyBudgetUSD)
	}

	if c.Health.WindowHours <= 0 {
		return errors.Newf("health.window_hours must be > 0, got %d", c.Health.WindowHours)
	}
	if c.Health.WarningRatio < 0 || c.Health.CriticalRatio > 1 || c.Health.WarningRatio > c.Health.CriticalRatio {
		return errors.Newf("health ratios must satisfy 0 <= warning_ratio (%g) <= critical_ratio (%g) <= 1",
			c.Health.WarningRatio, c.Health.CriticalRatio)
	}

	if c.OpenRouter.MaxCallsPerMinute < 0 {
		return errors.Newf("openrouter.max_calls_per_minute must be >= 0, got %d", c.OpenRouter.MaxCallsPerMinute)
	}
	if c.OpenRouter.TimeoutSeconds <= 0 {
		return errors.Newf("openrouter.timeout_seconds must be > 0, got %d", c.OpenRouter.TimeoutSeconds)
	}
	if c.Content.WordCount <= 0 {
		return errors.Newf("content.word_count must be > 0, got %d", c.Content.WordCount)
	}

	return nil
}

// FileReport is the result of checking a single config file
type FileReport struct {
	Path        string
	UnknownKeys []string
	Err         error // decode or Validate failure
}

// OK reports whether the file decoded, validated and had no unknown keys
func (r *FileReport) OK() bool {
	return r.Err == nil && len(r.UnknownKeys) == 0
}

// ValidateFile decodes a TOML file strictly on top of defaults and reports keys
// blogpulse does not understand alongside any Validate failure.
func ValidateFile(path string) *FileReport {
	report := &FileReport{Path: path}

	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		report.Err = errors.Wrapf(err, "failed to decode %s", path)
		return report
	}

	for _, key := range md.Undecoded() {
		report.UnknownKeys = append(report.UnknownKeys, key.String())
	}
	sort.Strings(report.UnknownKeys)

	if err := cfg.Validate(); err != nil {
		report.Err = err
	}
	return report
}
