package app

import (
	"fmt"
	"strings"
	"time"

	"linkwatch/internal/config"
	"linkwatch/internal/configstore"
	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/observability/httpserver"
	"linkwatch/internal/report"
	"linkwatch/internal/source"
	"linkwatch/internal/storage"
	"linkwatch/internal/task/scheduler"
	"linkwatch/internal/transport/router"
	logx "linkwatch/pkg/logx"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultTimezone     = "Asia/Jakarta"
	defaultTZLabel      = "WIB"
)

var (
	defaultThreshold = monitor.Threshold{MinMinutes: 15, MaxMinutes: 300}
	defaultSchedule  = []string{"07:00", "15:00"}
	// defaultRouterLabels apply when monitor.router_labels is omitted.
	defaultRouterLabels = map[string]string{
		"SALAM-UTAMA-METRO": "SALAM 1",
		"SALAM-UTAMA-INDI":  "SALAM 2",
	}
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			Channel:    l.Chat.Channel,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, configstore.Options, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if driver == "" {
		driver = "file"
	}
	if path == "" {
		switch driver {
		case "file":
			path = "./data"
		case "sqlite", "sqlite3":
			return storage.Config{}, configstore.Options{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, configstore.Options{}, err
	}
	delay, err := config.ParseDurationField("storage.retry_delay", sc.RetryDelay)
	if err != nil {
		return storage.Config{}, configstore.Options{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy},
		configstore.Options{WriteRetries: sc.WriteRetries, RetryDelay: delay},
		nil
}

func mapDefaults(cfg *config.Config) configstore.Defaults {
	d := configstore.Defaults{
		Threshold: monitor.Threshold{MinMinutes: cfg.Defaults.ThresholdMin, MaxMinutes: cfg.Defaults.ThresholdMax},
		Schedule:  cfg.Defaults.Schedule,
	}
	if !d.Threshold.Valid() {
		d.Threshold = defaultThreshold
	}
	if len(d.Schedule) == 0 {
		d.Schedule = defaultSchedule
	}
	for _, t := range cfg.Defaults.Targets {
		d.Targets = append(d.Targets, notifier.Target{ID: strings.TrimSpace(t.ID), Type: notifier.ParseSubscriptionType(t.Type)})
	}
	return d
}

func mapSourceConfig(cfg *config.Config) (source.Config, error) {
	s := cfg.Source
	delay, err := config.ParseDurationField("source.retry_delay", s.RetryDelay)
	if err != nil {
		return source.Config{}, err
	}
	timeout, err := config.ParseDurationField("source.timeout", s.Timeout)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		OfflineURL: strings.TrimSpace(s.OfflineURL),
		StatusURL:  strings.TrimSpace(s.StatusURL),
		Attempts:   s.Attempts,
		RetryDelay: delay,
		Timeout:    timeout,
		UserAgent:  s.UserAgent,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	d := cfg.Dispatch
	gap, err := config.ParseDurationOrDefault("dispatch.send_gap", d.SendGap, notifier.DefaultSendGap)
	if err != nil {
		return notifier.Config{}, err
	}
	timeout, err := config.ParseDurationField("dispatch.send_timeout", d.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{SendGap: gap, SendTimeout: timeout, HistorySize: d.HistorySize}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	return scheduler.Config{Timezone: tz, DefaultTimeout: timeout, HistorySize: cfg.Scheduler.HistorySize}, nil
}

func mapPollInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("monitor.poll_interval", cfg.Monitor.PollInterval, defaultPollInterval)
}

// mapFormatter renders in loc, the scheduler's timezone.
func mapFormatter(cfg *config.Config, loc *time.Location) monitor.Formatter {
	labels := cfg.Monitor.RouterLabels
	if len(labels) == 0 {
		labels = defaultRouterLabels
	}
	tzLabel := strings.TrimSpace(cfg.Scheduler.TZLabel)
	if tzLabel == "" {
		tzLabel = defaultTZLabel
	}
	return monitor.Formatter{Location: loc, TZLabel: tzLabel, Labels: labels}
}

func mapMonitorSettings(cfg *config.Config, f monitor.Formatter) monitor.Settings {
	return monitor.Settings{
		Routers:           cfg.Monitor.Routers,
		GroupingThreshold: cfg.Monitor.GroupingThreshold,
		Format:            f,
	}
}

func mapReportConfig(cfg *config.Config, f monitor.Formatter) (report.Config, error) {
	timeout, err := config.ParseDurationField("report.timeout", cfg.Report.Timeout)
	if err != nil {
		return report.Config{}, err
	}
	return report.Config{
		Title:    cfg.Report.Title,
		Routers:  cfg.Monitor.Routers,
		Parallel: cfg.Report.Parallel,
		Timeout:  timeout,
		Format:   f,
	}, nil
}

func mapCommandsConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := config.ParseDurationField("commands.timeout", cfg.Commands.Timeout)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{Workers: cfg.Commands.Workers, QueueSize: cfg.Commands.QueueSize, Timeout: timeout}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	h := cfg.HTTP
	out := httpserver.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second); err != nil {
		return httpserver.Config{}, err
	}
	// pprof profiles stream for up to 30s by default
	if out.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 60*time.Second); err != nil {
		return httpserver.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second); err != nil {
		return httpserver.Config{}, err
	}
	return out, nil
}
