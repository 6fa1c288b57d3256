package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// RestartOnlySections are applied at startup only; changes are logged.
var RestartOnlySections = []string{"storage", "dashboard", "telegram.token"}

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens,
// DSNs or passwords).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram.token")
	}
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.default_timezone", strings.TrimSpace(newCfg.Scheduler.DefaultTimezone)),
			logx.String("scheduler.fire_timeout", strings.TrimSpace(newCfg.Scheduler.FireTimeout)),
		)
	}

	// Storage (never log DSN or password)
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
			logx.String("storage.addr", strings.TrimSpace(newCfg.Storage.Addr)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dashboard, newCfg.Dashboard) {
		changed = append(changed, "dashboard")
		attrs = append(attrs,
			logx.Bool("dashboard.enabled", newCfg.Dashboard.Enabled),
			logx.String("dashboard.addr", strings.TrimSpace(newCfg.Dashboard.Addr)),
			logx.Int("dashboard.cors_origins", len(newCfg.Dashboard.CORSOrigins)),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.confirm_ttl", strings.TrimSpace(newCfg.Reminders.ConfirmTTL)),
			logx.Int("reminders.send_rate_per_sec", newCfg.Reminders.SendRatePerSec),
			logx.String("reminders.chat_cache_ttl", strings.TrimSpace(newCfg.Reminders.ChatCacheTTL)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to the sections that need a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		for _, r := range RestartOnlySections {
			if c == r {
				out = append(out, c)
			}
		}
	}
	return out
}
