package config

import (
	"reflect"
	"sort"
	"strings"

	logx "linkwatch/pkg/logx"
)

// SummarizeConfigChange returns the sorted names of changed sections and
// safe structured attrs for logging. Secrets (tokens) are reported only as
// "<section>.token_set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		tokenSet(oldCfg.Telegram.Token) != tokenSet(newCfg.Telegram.Token) {
		mark("telegram",
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", tokenSet(newCfg.Telegram.Token)),
		)
	}
	if oldCfg.Discord.Enabled != newCfg.Discord.Enabled ||
		tokenSet(oldCfg.Discord.Token) != tokenSet(newCfg.Discord.Token) {
		mark("discord",
			logx.Bool("discord.enabled", newCfg.Discord.Enabled),
			logx.Bool("discord.token_set", tokenSet(newCfg.Discord.Token)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Admins, newCfg.Admins) {
		mark("admins", logx.Int("admins.count", len(newCfg.Admins)))
	}
	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		mark("monitor",
			logx.Int("monitor.routers", len(newCfg.Monitor.Routers)),
			logx.String("monitor.poll_interval", strings.TrimSpace(newCfg.Monitor.PollInterval)),
			logx.Int("monitor.grouping_threshold", newCfg.Monitor.GroupingThreshold),
		)
	}
	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		mark("source",
			logx.Int("source.attempts", newCfg.Source.Attempts),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		// Defaults only seed missing records; a change here does not touch
		// the live threshold or schedule.
		mark("defaults", logx.Int("defaults.targets", len(newCfg.Defaults.Targets)))
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		mark("dispatch",
			logx.String("dispatch.send_gap", strings.TrimSpace(newCfg.Dispatch.SendGap)),
			logx.String("dispatch.send_timeout", strings.TrimSpace(newCfg.Dispatch.SendTimeout)),
		)
	}
	if oldCfg.Report != newCfg.Report {
		mark("report", logx.Int("report.parallel", newCfg.Report.Parallel))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.tz_label", strings.TrimSpace(newCfg.Scheduler.TZLabel)),
		)
	}
	if oldCfg.Commands != newCfg.Commands {
		mark("commands",
			logx.Int("commands.workers", newCfg.Commands.Workers),
			logx.Int("commands.queue_size", newCfg.Commands.QueueSize),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}
	oh, nh := oldCfg.HTTP, newCfg.HTTP
	oh.Token, nh.Token = "", ""
	if oh != nh || tokenSet(oldCfg.HTTP.Token) != tokenSet(newCfg.HTTP.Token) {
		mark("http",
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.token_set", tokenSet(newCfg.HTTP.Token)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func tokenSet(s string) bool { return strings.TrimSpace(s) != "" }
