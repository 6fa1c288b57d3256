package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var knownDrivers = map[string]bool{
	"": true, "memory": true, "mem": true,
	"file":   true,
	"sqlite": true, "sqlite3": true,
	"postgres": true, "postgresql": true, "pg": true,
	"redis": true,
	"mongo": true, "mongodb": true,
}

// Validate checks cfg for values that would fail at runtime. It is used at
// startup and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if tz := strings.TrimSpace(cfg.Scheduler.DefaultTimezone); tz != "" {
		if strings.EqualFold(tz, "local") {
			errs = append(errs, errors.New("scheduler.default_timezone: use an IANA zone name, not Local"))
		} else if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.default_timezone: %w", err))
		}
	}
	if _, err := ParseDurationField("scheduler.fire_timeout", cfg.Scheduler.FireTimeout); err != nil {
		errs = append(errs, err)
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if !knownDrivers[driver] {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseDurationField("reminders.confirm_ttl", cfg.Reminders.ConfirmTTL); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("reminders.chat_cache_ttl", cfg.Reminders.ChatCacheTTL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Reminders.SendRatePerSec < 0 {
		errs = append(errs, errors.New("reminders.send_rate_per_sec must be >= 0"))
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.telegram.rate_per_sec must be >= 0"))
	}
	return errors.Join(errs...)
}
