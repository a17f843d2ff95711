package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"linkwatch/internal/eventbus"
	logx "linkwatch/pkg/logx"
)

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

// AddCronOpt registers spec under name, replacing any schedule with that name.
func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid spec %q: %w", spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(func(d *scheduleDef) bool { return d.name == name })
	s.addLocked(&scheduleDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt})
	return name, nil
}

// AddInterval runs job every interval, skipping triggers while a run is in flight.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", fmt.Errorf("invalid interval %s", every)
	}
	return s.AddCron(name, "@every "+every.String(), timeout, job)
}

// AddDaily runs job at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job Job) (string, error) {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// ReplaceDaily atomically swaps the daily triggers of group for one trigger
// per label. Every label is validated first; on error nothing changes.
func (s *Service) ReplaceDaily(group string, labels []string, timeout time.Duration, job func(ctx context.Context, label string) error) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return errors.New("group required")
	}
	defs := make([]*scheduleDef, 0, len(labels))
	for _, label := range labels {
		h, m, err := ParseHHMM(label)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("%02d:%02d", h, m)
		defs = append(defs, &scheduleDef{
			name:    group + "@" + label,
			group:   group,
			spec:    fmt.Sprintf("%d %d * * *", m, h),
			timeout: timeout,
			job:     func(ctx context.Context) error { return job(ctx, label) },
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gens[group] + 1
	s.gens[group] = gen
	removed := s.removeLocked(func(d *scheduleDef) bool { return d.group == group })
	for _, d := range defs {
		d.gen = gen
		s.addLocked(d)
	}
	s.log.Info("schedule group replaced",
		logx.String("group", group),
		logx.Int("removed", removed),
		logx.Any("labels", labels),
	)
	return nil
}

// Remove unschedules every schedule named name.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	n := s.removeLocked(func(d *scheduleDef) bool { return d.name == name })
	s.mu.Unlock()
	if n > 0 {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return n > 0
}

func (s *Service) addLocked(d *scheduleDef) {
	d.id = fmt.Sprintf("sched:%d", time.Now().UnixNano())
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Registered when Start runs.
		return
	}
	s.registerLocked(d)
	args := []logx.Field{logx.String("name", d.name), logx.String("spec", d.spec)}
	if next := s.previewNextRunsLocked(d.spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
}

func (s *Service) removeLocked(match func(*scheduleDef) bool) int {
	n := 0
	kept := s.defs[:0]
	for _, d := range s.defs {
		if !match(d) {
			kept = append(kept, d)
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		d.entryID = 0
		n++
	}
	for i := len(kept); i < len(s.defs); i++ {
		s.defs[i] = nil
	}
	s.defs = kept
	return n
}

func (s *Service) registerLocked(d *scheduleDef) {
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() { s.run(d) }))
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

func (s *Service) stale(d *scheduleDef) bool {
	if d.group == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[d.group] != d.gen
}

// run executes one trigger of d.
func (s *Service) run(d *scheduleDef) {
	if s.stale(d) {
		s.log.Debug("stale trigger ignored", logx.String("name", d.name))
		return
	}
	if d.opt.Overlap == OverlapSkipIfRunning {
		if !d.running.CompareAndSwap(false, true) {
			s.log.Debug("schedule trigger skipped", logx.String("name", d.name), logx.String("reason", "running"))
			s.record(HistoryItem{Name: d.name, Started: time.Now(), Skipped: true})
			return
		}
		defer d.running.Store(false)
	}

	s.mu.Lock()
	base := s.base
	timeout := d.timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	s.mu.Unlock()

	ctx := base
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(base, timeout)
	}
	defer cancel()

	start := time.Now()
	err := runSafe(ctx, d.job)
	it := HistoryItem{Name: d.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		it.Error = err.Error()
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("took", it.Duration), logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Time: time.Now(), Data: it})
		}
	}
	s.record(it)
}

func runSafe(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - limit; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
	s.hmu.Unlock()
}

// previewNextRunsLocked returns the next n run times of spec, for debug logs.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// ParseHHMM parses "H:MM" or "HH:MM".
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) < 1 || len(parts[0]) > 2 || !digits(parts[0]+parts[1]) {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
