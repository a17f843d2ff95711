package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "linkwatch/pkg/logx"
)

func find(s *Service, name string) *scheduleDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	return nil
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"07:00", 7, 0, true},
		{"7:05", 7, 5, true},
		{"23:59", 23, 59, true},
		{"24:00", 0, 0, false},
		{"07:60", 0, 0, false},
		{"7:5", 0, 0, false},
		{"+7:00", 0, 0, false},
		{"0700", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, err := ParseHHMM(tt.in)
		if (err == nil) != tt.wantOK || (tt.wantOK && (h != tt.h || m != tt.m)) {
			t.Fatalf("ParseHHMM(%q)=%d,%d,%v", tt.in, h, m, err)
		}
	}
}

func TestReplaceDailyIsAtomic(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "UTC"}, logx.Nop(), nil)
	var fired []string
	job := func(_ context.Context, label string) error {
		fired = append(fired, label)
		return nil
	}

	if err := s.ReplaceDaily("report", []string{"07:00", "15:00"}, time.Second, job); err != nil {
		t.Fatalf("ReplaceDaily: %v", err)
	}
	old := find(s, "report@07:00")
	if old == nil {
		t.Fatalf("old trigger missing")
	}

	if err := s.ReplaceDaily("report", []string{"8:30"}, time.Second, job); err != nil {
		t.Fatalf("ReplaceDaily: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != "report@08:30" {
		t.Fatalf("schedules=%+v", snap.Schedules)
	}

	// An old trigger already firing must not run.
	s.run(old)
	if len(fired) != 0 {
		t.Fatalf("stale trigger ran: %v", fired)
	}
	s.run(find(s, "report@08:30"))
	if len(fired) != 1 || fired[0] != "08:30" {
		t.Fatalf("fired=%v", fired)
	}
}

func TestReplaceDailyRejectsBadBatch(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	noop := func(context.Context, string) error { return nil }
	_ = s.ReplaceDaily("report", []string{"07:00"}, 0, noop)

	if err := s.ReplaceDaily("report", []string{"09:00", "25:00"}, 0, noop); err == nil {
		t.Fatalf("expected error")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != "report@07:00" {
		t.Fatalf("bad batch changed schedules: %+v", snap.Schedules)
	}
}

func TestOverlapIsSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	release := make(chan struct{})
	var runs atomic.Int32
	if _, err := s.AddInterval("poll", time.Hour, 0, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	d := find(s, "poll")

	done := make(chan struct{})
	go func() {
		s.run(d)
		close(done)
	}()
	for !d.running.Load() {
		time.Sleep(time.Millisecond)
	}
	s.run(d)
	close(release)
	<-done

	if runs.Load() != 1 {
		t.Fatalf("runs=%d want 1", runs.Load())
	}
	hist := s.Snapshot().History
	if len(hist) != 2 || !hist[0].Skipped {
		t.Fatalf("history=%+v", hist)
	}
}

func TestRunRecoversPanicAndAppliesTimeout(t *testing.T) {
	t.Parallel()

	s := New(Config{DefaultTimeout: 10 * time.Millisecond}, logx.Nop(), nil)
	_, _ = s.AddCron("boom", "@hourly", 0, func(ctx context.Context) error { panic("kaput") })
	_, _ = s.AddCron("slow", "@hourly", 0, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.run(find(s, "boom"))
	s.run(find(s, "slow"))

	hist := s.Snapshot().History
	if len(hist) != 2 || hist[0].Error == "" || hist[1].Error == "" {
		t.Fatalf("history=%+v", hist)
	}
}

func TestStartFiresInterval(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "UTC"}, logx.Nop(), nil)
	hit := make(chan struct{}, 1)
	_, _ = s.AddInterval("tick", time.Second, 0, func(context.Context) error {
		select {
		case hit <- struct{}{}:
		default:
		}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	select {
	case <-hit:
	case <-time.After(3 * time.Second):
		t.Fatalf("interval never fired")
	}
	if got := s.Location().String(); got != "UTC" {
		t.Fatalf("location=%s", got)
	}
}

func TestAddCronRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if _, err := s.AddCron("x", "not a spec", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := s.AddDaily("y", "7am", 0, func(context.Context) error { return errors.New("x") }); err == nil {
		t.Fatalf("expected error")
	}
}
