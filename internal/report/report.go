// Package report builds the periodic per-router status summary and sends it
// on the configured daily schedule.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/sync/singleflight"

	"linkwatch/internal/eventbus"
	"linkwatch/internal/metrics"
	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/source"
	logx "linkwatch/pkg/logx"
)

// TriggerGroup names the daily trigger group in the scheduler.
const TriggerGroup = "report"

var ErrNoData = errors.New("report: no router status available")

type StatusFetcher interface {
	FetchStatus(ctx context.Context, router string) (source.RouterStatus, error)
}

type Store interface {
	Blacklist() []string
	RecordReport(ctx context.Context, label string, at time.Time) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, c notifier.Category, text string) notifier.DispatchResult
}

// Triggers installs daily triggers; see scheduler.Service.ReplaceDaily.
type Triggers interface {
	ReplaceDaily(group string, labels []string, timeout time.Duration, job func(ctx context.Context, label string) error) error
}

type Config struct {
	Title    string
	Routers  []string
	Parallel int
	// Timeout bounds one whole report run.
	Timeout time.Duration
	Format  monitor.Formatter
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Title) == "" {
		c.Title = "Salam"
	}
	if c.Parallel <= 0 {
		c.Parallel = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Minute
	}
	c.Routers = append([]string(nil), c.Routers...)
	return c
}

type Service struct {
	fetch    StatusFetcher
	store    Store
	out      Dispatcher
	triggers Triggers
	log      logx.Logger
	bus      eventbus.Bus
	metrics  *metrics.Metrics

	cfg atomic.Pointer[Config]
	sf  singleflight.Group

	mu     sync.Mutex
	labels []string
}

func New(cfg Config, fetch StatusFetcher, store Store, out Dispatcher, triggers Triggers, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{fetch: fetch, store: store, out: out, triggers: triggers, log: log, bus: bus, metrics: m}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg.Store(&cfg)
}

func (s *Service) config() Config { return *s.cfg.Load() }

// Install replaces the daily report triggers with labels.
func (s *Service) Install(labels []string) error {
	if err := s.triggers.ReplaceDaily(TriggerGroup, labels, s.config().Timeout, s.RunScheduled); err != nil {
		return err
	}
	s.mu.Lock()
	s.labels = append([]string(nil), labels...)
	s.mu.Unlock()
	return nil
}

// Labels returns the installed schedule.
func (s *Service) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.labels...)
}

// Collect fetches every router in parallel. Routers that fail are logged and
// left out; ErrNoData is returned when none succeeded.
func (s *Service) Collect(ctx context.Context) ([]source.RouterStatus, error) {
	cfg := s.config()
	results := make([]source.RouterStatus, len(cfg.Routers))
	errs := make([]error, len(cfg.Routers))

	swg := sizedwaitgroup.New(cfg.Parallel)
	for i, router := range cfg.Routers {
		swg.Add()
		go func(i int, router string) {
			defer swg.Done()
			results[i], errs[i] = s.fetch.FetchStatus(ctx, router)
		}(i, router)
	}
	swg.Wait()

	out := make([]source.RouterStatus, 0, len(results))
	var failed []error
	for i := range results {
		if errs[i] != nil {
			s.log.Warn("router status unavailable", logx.String("router", cfg.Routers[i]), logx.Err(errs[i]))
			failed = append(failed, errs[i])
			continue
		}
		out = append(out, results[i])
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoData, errors.Join(failed...))
	}
	return out, nil
}

// Current builds a report now. Concurrent callers share one fetch.
func (s *Service) Current(ctx context.Context) (string, error) {
	v, err, shared := s.sf.Do("current", func() (any, error) {
		st, err := s.Collect(ctx)
		if err != nil {
			return "", err
		}
		cfg := s.config()
		return Build(cfg.Title, cfg.Format, st, s.store.Blacklist()), nil
	})
	if shared {
		s.log.Debug("status fetch shared")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RunScheduled is the daily trigger job for label.
func (s *Service) RunScheduled(ctx context.Context, label string) error {
	statuses, err := s.Collect(ctx)
	if err != nil {
		s.log.Error("report skipped", logx.String("label", label), logx.Err(err))
		s.metrics.Report(err)
		s.publish(eventbus.ReportSkipped, label, err)
		return err
	}

	cfg := s.config()
	text := Build(cfg.Title, cfg.Format, statuses, s.store.Blacklist())
	res := s.out.Dispatch(ctx, notifier.Report, text)

	if err := s.store.RecordReport(ctx, label, cfg.Format.Current()); err != nil {
		s.log.Debug("last report time not persisted yet", logx.String("label", label), logx.Err(err))
	}
	s.metrics.Report(nil)
	s.publish(eventbus.ReportSent, label, nil)
	s.log.Info("scheduled report sent",
		logx.String("label", label),
		logx.Int("routers", len(statuses)),
		logx.Int("sent", len(res.Sent)),
		logx.Int("failed", len(res.Failed)),
	)
	return nil
}

type Event struct {
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

func (s *Service) publish(typ, label string, err error) {
	if s.bus == nil {
		return
	}
	e := Event{Label: label}
	if err != nil {
		e.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: e})
}
