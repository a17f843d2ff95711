package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v5"

	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/source"
	logx "linkwatch/pkg/logx"
)

var fixedNow = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

var testFormat = monitor.Formatter{
	Location: time.FixedZone("WIB", 7*3600),
	TZLabel:  "WIB",
	Labels:   map[string]string{"SALAM-UTAMA-METRO": "SALAM 1", "SALAM-UTAMA-INDI": "SALAM 2"},
	Now:      func() time.Time { return fixedNow },
}

type fakeFetcher struct {
	calls  atomic.Int32
	delay  time.Duration
	status map[string]source.RouterStatus
	fail   map[string]bool
}

func (f *fakeFetcher) FetchStatus(_ context.Context, router string) (source.RouterStatus, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.fail[router] {
		return source.RouterStatus{Router: router}, errors.New("boom")
	}
	return f.status[router], nil
}

type fakeStore struct {
	mu        sync.Mutex
	blacklist []string
	reports   map[string]time.Time
}

func (s *fakeStore) Blacklist() []string { return s.blacklist }
func (s *fakeStore) RecordReport(_ context.Context, label string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reports == nil {
		s.reports = map[string]time.Time{}
	}
	s.reports[label] = at
	return nil
}

type fakeOut struct {
	mu   sync.Mutex
	sent []string
	cats []notifier.Category
}

func (o *fakeOut) Dispatch(_ context.Context, c notifier.Category, text string) notifier.DispatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, text)
	o.cats = append(o.cats, c)
	return notifier.DispatchResult{Category: c, Eligible: 1, Sent: []string{"x"}}
}

type fakeTriggers struct {
	group  string
	labels []string
	err    error
}

func (t *fakeTriggers) ReplaceDaily(group string, labels []string, _ time.Duration, _ func(context.Context, string) error) error {
	if t.err != nil {
		return t.err
	}
	t.group, t.labels = group, labels
	return nil
}

func statuses() map[string]source.RouterStatus {
	return map[string]source.RouterStatus{
		"SALAM-UTAMA-INDI": {
			Router:  "SALAM-UTAMA-INDI",
			Total:   null.IntFrom(30),
			Running: null.IntFrom(28),
			Offline: []string{"BRN-01", "guest"},
		},
		"SALAM-UTAMA-METRO": {
			Router:  "SALAM-UTAMA-METRO",
			Total:   null.IntFrom(20),
			Offline: nil,
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	st := statuses()
	got := Build("Salam", testFormat, []source.RouterStatus{st["SALAM-UTAMA-INDI"], st["SALAM-UTAMA-METRO"]}, []string{"GUEST"})
	want := "Monitoring Salam, 01/05/2024\n07:00 WIB\n\n" +
		"SALAM 2\n28/30 aktif | Offline 1\nOffline list:\n- BRN-01\n\n" +
		"SALAM 1\n20/20 aktif | Offline 0\nTidak ada user offline\n\n" +
		"Total aktif: 48/50 koneksi"
	if got != want {
		t.Fatalf("report mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestBuildCountFallbacks(t *testing.T) {
	t.Parallel()

	got := Build("Salam", testFormat, []source.RouterStatus{{
		Router:  "R",
		Running: null.IntFrom(5),
		Offline: []string{"a", "b"},
	}}, nil)
	if !strings.Contains(got, "5/7 aktif | Offline 2") {
		t.Fatalf("total fallback wrong: %q", got)
	}
}

func newService(f *fakeFetcher, st *fakeStore, out *fakeOut, tr *fakeTriggers) *Service {
	return New(Config{
		Routers:  []string{"SALAM-UTAMA-INDI", "SALAM-UTAMA-METRO"},
		Parallel: 2,
		Format:   testFormat,
	}, f, st, out, tr, logx.Nop(), nil, nil)
}

func TestRunScheduledSendsAndRecords(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{status: statuses()}
	st := &fakeStore{}
	out := &fakeOut{}
	s := newService(f, st, out, &fakeTriggers{})

	if err := s.RunScheduled(context.Background(), "07:00"); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if len(out.sent) != 1 || out.cats[0] != notifier.Report {
		t.Fatalf("dispatches=%v", out.cats)
	}
	if !st.reports["07:00"].Equal(fixedNow) {
		t.Fatalf("last report not recorded: %v", st.reports)
	}
}

func TestRunScheduledSkipsWhenAllFail(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{status: statuses(), fail: map[string]bool{"SALAM-UTAMA-INDI": true, "SALAM-UTAMA-METRO": true}}
	st := &fakeStore{}
	out := &fakeOut{}
	s := newService(f, st, out, &fakeTriggers{})

	err := s.RunScheduled(context.Background(), "07:00")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err=%v want ErrNoData", err)
	}
	if len(out.sent) != 0 || len(st.reports) != 0 {
		t.Fatalf("skipped report still sent or recorded")
	}
}

func TestCollectKeepsPartialResultsInOrder(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{status: statuses(), fail: map[string]bool{"SALAM-UTAMA-INDI": true}}
	s := newService(f, &fakeStore{}, &fakeOut{}, &fakeTriggers{})
	got, err := s.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 || got[0].Router != "SALAM-UTAMA-METRO" {
		t.Fatalf("got=%+v", got)
	}
}

func TestCurrentSharesConcurrentFetches(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{status: statuses(), delay: 50 * time.Millisecond}
	s := newService(f, &fakeStore{}, &fakeOut{}, &fakeTriggers{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Current(context.Background()); err != nil {
				t.Errorf("Current: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := f.calls.Load(); n >= 10 {
		t.Fatalf("fetches were not shared: %d calls", n)
	}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	tr := &fakeTriggers{}
	s := newService(&fakeFetcher{}, &fakeStore{}, &fakeOut{}, tr)
	if err := s.Install([]string{"07:00", "15:00"}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if tr.group != TriggerGroup || len(s.Labels()) != 2 {
		t.Fatalf("group=%q labels=%v", tr.group, s.Labels())
	}

	tr.err = errors.New("bad label")
	if err := s.Install([]string{"99:99"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(s.Labels()) != 2 {
		t.Fatalf("failed install changed labels")
	}
}
