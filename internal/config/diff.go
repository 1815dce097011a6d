package config

import (
	"sort"
	"strings"

	"jobalertbot/pkg/logx"
)

// SummarizeChange returns the changed config sections plus structured
// attrs safe for logging. Secrets (bot token, API key) are reported only
// as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.Int("trigger.max_concurrent", newCfg.Trigger.MaxConcurrent),
			logx.String("trigger.timeout", strings.TrimSpace(newCfg.Trigger.Timeout)),
			logx.Bool("trigger.endpoint_set", strings.TrimSpace(newCfg.Trigger.Endpoint) != ""),
		)
	}

	if oldCfg.Parser != newCfg.Parser {
		changed = append(changed, "parser")
		attrs = append(attrs,
			logx.Bool("parser.api_key_set", strings.TrimSpace(newCfg.Parser.APIKey) != ""),
			logx.String("parser.model", newCfg.Parser.Model),
			logx.Int("parser.max_tokens", newCfg.Parser.MaxTokens),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
