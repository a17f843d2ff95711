package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"linkwatch/internal/monitor"
	"linkwatch/internal/task/scheduler"
)

// Validate reports every problem found in cfg joined into one error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !cfg.Telegram.Enabled && !cfg.Discord.Enabled {
		add("telegram or discord must be enabled")
	}
	if cfg.Telegram.Enabled && !tokenSet(cfg.Telegram.Token) {
		add("telegram.token: required when telegram is enabled")
	}
	if cfg.Discord.Enabled && !tokenSet(cfg.Discord.Token) {
		add("discord.token: required when discord is enabled")
	}

	if len(cfg.Monitor.Routers) == 0 {
		add("monitor.routers: at least one router is required")
	}
	for i, r := range cfg.Monitor.Routers {
		if strings.TrimSpace(r) == "" {
			add("monitor.routers[%d]: empty", i)
		}
	}
	if cfg.Monitor.GroupingThreshold < 0 {
		add("monitor.grouping_threshold: must be >= 0")
	}

	if err := checkURL("source.offline_url", cfg.Source.OfflineURL); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("source.status_url", strings.ReplaceAll(cfg.Source.StatusURL, "{router}", "r")); err != nil {
		errs = append(errs, err)
	} else if !strings.Contains(cfg.Source.StatusURL, "{router}") {
		add("source.status_url: must contain {router}")
	}
	if cfg.Source.Attempts < 0 {
		add("source.attempts: must be >= 0")
	}

	d := cfg.Defaults
	if d.ThresholdMin != 0 || d.ThresholdMax != 0 {
		if !(monitor.Threshold{MinMinutes: d.ThresholdMin, MaxMinutes: d.ThresholdMax}).Valid() {
			add("defaults: threshold_min must be > 0 and below threshold_max")
		}
	}
	for i, s := range d.Schedule {
		if _, _, err := scheduler.ParseHHMM(s); err != nil {
			add("defaults.schedule[%d]: %v", i, err)
		}
	}
	for i, t := range d.Targets {
		if strings.TrimSpace(t.ID) == "" {
			add("defaults.targets[%d].id: empty", i)
		}
		switch strings.ToLower(strings.TrimSpace(t.Type)) {
		case "", "all", "link":
		default:
			add("defaults.targets[%d].type: %q is not all or link", i, t.Type)
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory":
	default:
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.HTTP.Enabled && !tokenSet(cfg.HTTP.Token) && !cfg.HTTP.AllowInsecure && !loopback(cfg.HTTP.Addr) {
		add("http: non-loopback addr %q needs a token or allow_insecure", cfg.HTTP.Addr)
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"monitor.poll_interval", cfg.Monitor.PollInterval},
		{"source.retry_delay", cfg.Source.RetryDelay},
		{"source.timeout", cfg.Source.Timeout},
		{"dispatch.send_gap", cfg.Dispatch.SendGap},
		{"dispatch.send_timeout", cfg.Dispatch.SendTimeout},
		{"report.timeout", cfg.Report.Timeout},
		{"scheduler.default_timeout", cfg.Scheduler.DefaultTimeout},
		{"commands.timeout", cfg.Commands.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"storage.retry_delay", cfg.Storage.RetryDelay},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkURL(path, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s: required", path)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", path)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", path)
	}
	return nil
}

func loopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true // default addr is 127.0.0.1
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
