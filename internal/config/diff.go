package config

import (
	"strings"

	"smscast/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging. API credentials are only ever reported
// as "*_set" booleans.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Provider (never log key/secret values)
	if strings.TrimSpace(oldCfg.Provider.APIKey) != strings.TrimSpace(newCfg.Provider.APIKey) ||
		strings.TrimSpace(oldCfg.Provider.APISecret) != strings.TrimSpace(newCfg.Provider.APISecret) ||
		strings.TrimSpace(oldCfg.Provider.SenderPhone) != strings.TrimSpace(newCfg.Provider.SenderPhone) ||
		strings.TrimSpace(oldCfg.Provider.Endpoint) != strings.TrimSpace(newCfg.Provider.Endpoint) {
		changed = append(changed, "provider")
		attrs = append(attrs,
			logx.Bool("provider.api_key_set", strings.TrimSpace(newCfg.Provider.APIKey) != ""),
			logx.Bool("provider.api_secret_set", strings.TrimSpace(newCfg.Provider.APISecret) != ""),
			logx.Bool("provider.sender_set", strings.TrimSpace(newCfg.Provider.SenderPhone) != ""),
			logx.Bool("provider.endpoint_overridden", strings.TrimSpace(newCfg.Provider.Endpoint) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Dispatch
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.send_delay", strings.TrimSpace(newCfg.Dispatch.SendDelay)),
			logx.String("dispatch.send_timeout", strings.TrimSpace(newCfg.Dispatch.SendTimeout)),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		)
	}

	// Message template
	if oldCfg.Message != newCfg.Message {
		changed = append(changed, "message")
		attrs = append(attrs,
			logx.Int("message.template_len", len(newCfg.Message.DefaultTemplate)),
		)
	}

	// History
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newCfg.History.Driver)),
			logx.String("history.path", strings.TrimSpace(newCfg.History.Path)),
		)
	}

	// Roster
	if oldCfg.Roster != newCfg.Roster {
		changed = append(changed, "roster")
		attrs = append(attrs, logx.String("roster.path", strings.TrimSpace(newCfg.Roster.Path)))
	}

	// Scheduler
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.daily_at", strings.TrimSpace(newCfg.Scheduler.DailyAt)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	return changed, attrs
}
