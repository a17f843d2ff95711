package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"linkwatch/internal/commands"
	"linkwatch/internal/config"
	"linkwatch/internal/configstore"
	"linkwatch/internal/eventbus"
	"linkwatch/internal/metrics"
	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/observability/httpserver"
	"linkwatch/internal/report"
	"linkwatch/internal/runtime/sdnotify"
	rtsup "linkwatch/internal/runtime/supervisor"
	"linkwatch/internal/source"
	"linkwatch/internal/storage"
	"linkwatch/internal/task/scheduler"
	"linkwatch/internal/transport"
	"linkwatch/internal/transport/channelid"
	"linkwatch/internal/transport/discord"
	"linkwatch/internal/transport/router"
	"linkwatch/internal/transport/telegram"
	logx "linkwatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	metrics *metrics.Metrics

	mux     *transport.Mux
	backend storage.Store
	store   *configstore.Store
	src     *source.Client
	notif   *notifier.Router
	sched   *scheduler.Service
	monitor *monitor.Service
	reports *report.Service
	access  *commands.Access
	cmdm    *router.CommandManager
	http    *httpserver.Service

	format    atomic.Pointer[monitor.Formatter]
	pollEvery time.Duration

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath, env)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sender is attached once the transports exist.
	logs, log := logx.New(mapLoggingConfig(cfg), nil)

	mux, err := buildTransports(cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	logs.SetSender(mux)

	a, err := newApp(cfgm, cfg, logs, log, mux)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

// buildTransports registers Discord under its id prefix and Telegram as
// the fallback for bare numeric ids.
func buildTransports(cfg *config.Config, log logx.Logger) (*transport.Mux, error) {
	mux := transport.NewMux()
	if cfg.Telegram.Enabled {
		poll, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, log)
		if err != nil {
			return nil, err
		}
		mux.Handle("", tg)
	}
	if cfg.Discord.Enabled {
		dc, err := discord.New(discord.Config{Token: cfg.Discord.Token}, log)
		if err != nil {
			return nil, err
		}
		mux.Handle(channelid.DiscordPrefix, dc)
	}
	return mux, nil
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, logs *logx.Service, log logx.Logger, mux *transport.Mux) (*App, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()

	stc, opts, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(stc, log)
	if err != nil {
		return nil, err
	}
	store := configstore.New(backend, opts, log.With(logx.String("comp", "store")), bus, m)

	srcCfg, err := mapSourceConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	src := source.New(srcCfg, nil, log.With(logx.String("comp", "source")), m)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, mux, store, log.With(logx.String("comp", "notifier")), bus, m)
	notif.SetLearner(store.Devices)

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	sched := scheduler.New(scfg, log.With(logx.String("comp", "scheduler")), bus)

	pollEvery, err := mapPollInterval(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		logs:      logs,
		log:       log,
		bus:       bus,
		metrics:   m,
		mux:       mux,
		backend:   backend,
		store:     store,
		src:       src,
		notif:     notif,
		sched:     sched,
		pollEvery: pollEvery,
		updates:   make(chan transport.Update, 256),
	}
	f := mapFormatter(cfg, sched.Location())
	a.format.Store(&f)

	a.monitor = monitor.NewService(src, store, notif, mapMonitorSettings(cfg, f),
		log.With(logx.String("comp", "monitor")), bus, m)

	rcfg, err := mapReportConfig(cfg, f)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.reports = report.New(rcfg, src, store, notif, sched, log.With(logx.String("comp", "report")), bus, m)

	ccfg, err := mapCommandsConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.access = commands.NewAccess(cfg.Admins, store)
	handlers := &commands.Handlers{
		Proc:    commands.NewProcessor(store, a.reports, log.With(logx.String("comp", "commands"))),
		Access:  a.access,
		Store:   store,
		Reports: a.reports,
		Groups:  a.monitor.Groups,
		Format:  a.formatter,
		Log:     log,
	}
	a.cmdm = router.NewCommandManager(ccfg, log, mux, a.access)
	a.cmdm.SetRegistry(handlers.Commands())

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.http = httpserver.New(hcfg, m.Handler(), a.monitor, log)
	return a, nil
}

func (a *App) formatter() monitor.Formatter { return *a.format.Load() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate rejects a reload that would fail to map onto the running components.
func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapSourceConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPollInterval(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapCommandsConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validate)

	cfg := a.cfgm.Get()
	if err := a.store.Load(ctx, mapDefaults(cfg)); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := a.reports.Install(a.store.ScheduleTimes()); err != nil {
		a.log.Warn("stored report schedule rejected; using defaults",
			logx.Any("schedule", a.store.ScheduleTimes()), logx.Err(err))
		if err := a.reports.Install(mapDefaults(cfg).Schedule); err != nil {
			return err
		}
	}
	if _, err := a.sched.AddInterval("monitor.poll", a.pollEvery, 0, a.poll); err != nil {
		return err
	}

	if err := a.mux.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())
	a.http.Start(a.sup.Context())

	a.cmdm.SetParent(a.sup)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// First cycle runs now instead of one interval after boot.
	a.sup.Go0("monitor.startup", func(c context.Context) { _ = a.poll(c) })

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// debug-level: poll events fire every interval
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				a.applyConfig(c, newCfg, sections)
				a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) { sdnotify.Watchdog(c, a.log) })
	sdnotify.Ready(a.log, fmt.Sprintf("polling %d routers every %s", len(cfg.Monitor.Routers), a.pollEvery))

	a.log.Info("app started",
		logx.Duration("poll_every", a.pollEvery),
		logx.Any("schedule", a.store.ScheduleTimes()),
		logx.Int("targets", len(a.store.Targets())))
	return nil
}

// poll runs one monitoring cycle. A skipped cycle is not a task failure.
func (a *App) poll(ctx context.Context) error {
	res := a.monitor.RunCycle(ctx)
	if res.Skipped {
		a.log.Debug("cycle skipped", logx.String("err", res.Error))
	}
	return nil
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range []string{"storage", "telegram", "discord"} {
		if slices.Contains(sections, s) {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLoggingConfig(cfg))
	a.access.SetAdmins(cfg.Admins)

	if scfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scfg)
	}
	f := mapFormatter(cfg, a.sched.Location())
	a.format.Store(&f)
	a.monitor.Apply(mapMonitorSettings(cfg, f))

	if rcfg, err := mapReportConfig(cfg, f); err != nil {
		a.log.Warn("invalid report config; keeping previous", logx.Err(err))
	} else {
		a.reports.Apply(rcfg)
	}

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if every, err := mapPollInterval(cfg); err != nil {
		a.log.Warn("invalid poll interval; keeping previous", logx.Err(err))
	} else if every != a.pollEvery {
		if _, err := a.sched.AddInterval("monitor.poll", every, 0, a.poll); err != nil {
			a.log.Warn("poll interval not applied", logx.Err(err))
		} else {
			a.pollEvery = every
		}
	}

	if hcfg, err := mapHTTPConfig(cfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, hcfg)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdnotify.Stopping(a.log)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 1*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("transports", 2*time.Second, func(c context.Context) error { return a.mux.Stop(c) })
	step("store.flush", 2*time.Second, func(c context.Context) error {
		if dirty := a.store.Dirty(); len(dirty) > 0 {
			a.log.Info("flushing unsaved records", logx.Any("records", dirty))
		}
		return a.store.Flush(c)
	})
	step("storage", 1*time.Second, func(context.Context) error { return a.backend.Close() })

	// config watch/reload, command dispatch, startup cycle
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
