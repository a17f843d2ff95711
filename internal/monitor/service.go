package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"linkwatch/internal/eventbus"
	"linkwatch/internal/metrics"
	"linkwatch/internal/notifier"
	logx "linkwatch/pkg/logx"
)

// OfflineFetcher returns the current offline snapshot.
type OfflineFetcher interface {
	FetchOffline(ctx context.Context) ([]OfflineRecord, error)
}

// StateStore owns the durable monitoring state. Every method is safe for
// concurrent use.
type StateStore interface {
	Notified() Notified
	Threshold() Threshold
	Blacklist() []string
	UpsertNotified(ctx context.Context, recs ...OfflineRecord) error
	PurgeNotified(ctx context.Context, active KeySet) error
	Flush(ctx context.Context) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, c notifier.Category, text string) notifier.DispatchResult
}

// Settings are the reloadable inputs of a cycle.
type Settings struct {
	Routers           []string
	GroupingThreshold int
	Format            Formatter
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	At         time.Time     `json:"at"`
	Took       time.Duration `json:"took"`
	Skipped    bool          `json:"skipped"`
	Error      string        `json:"error,omitempty"`
	Fetched    int           `json:"fetched"`
	Active     int           `json:"active"`
	Alerts     int           `json:"alerts"`
	Recoveries int           `json:"recoveries"`
	Tracked    int           `json:"tracked"`
}

// Service runs poll cycles. Cycles never overlap.
type Service struct {
	fetch   OfflineFetcher
	store   StateStore
	out     Dispatcher
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	Groups *GroupCache

	settings atomic.Pointer[Settings]

	mu   sync.Mutex
	last atomic.Pointer[CycleResult]
}

func NewService(fetch OfflineFetcher, store StateStore, out Dispatcher, st Settings, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		fetch:   fetch,
		store:   store,
		out:     out,
		log:     log,
		bus:     bus,
		metrics: m,
		Groups:  NewGroupCache(),
	}
	s.Apply(st)
	return s
}

// Apply swaps settings; the next cycle picks them up.
func (s *Service) Apply(st Settings) {
	if st.GroupingThreshold <= 0 {
		st.GroupingThreshold = DefaultGroupingThreshold
	}
	st.Routers = append([]string(nil), st.Routers...)
	s.settings.Store(&st)
}

func (s *Service) Settings() Settings { return *s.settings.Load() }

// LastCycle returns the most recent result, if any.
func (s *Service) LastCycle() (CycleResult, bool) {
	p := s.last.Load()
	if p == nil {
		return CycleResult{}, false
	}
	return *p, true
}

// RunCycle fetches, alerts, detects recoveries and purges.
//
// When the fetch fails the whole cycle is skipped: no alerts, no recoveries
// and no purge. An empty successful fetch recovers everything tracked. A
// record is upserted only after its message went out with ctx still live.
func (s *Service) RunCycle(ctx context.Context) (res CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res.At = start
	defer func() {
		res.Took = time.Since(start)
		s.last.Store(&res)
	}()

	if err := s.store.Flush(ctx); err != nil {
		s.log.Debug("dirty records still pending", logx.Err(err))
	}

	snapshot, err := s.fetch.FetchOffline(ctx)
	if err != nil {
		res.Skipped = true
		res.Error = err.Error()
		s.log.Warn("offline fetch failed; cycle skipped", logx.Err(err))
		s.metrics.CycleSkipped()
		s.publish(eventbus.CycleSkipped, res)
		return res
	}
	res.Fetched = len(snapshot)

	st := s.Settings()
	ev := Evaluate(snapshot, s.store.Notified(), Params{
		Routers:           st.Routers,
		Blacklist:         s.store.Blacklist(),
		Threshold:         s.store.Threshold(),
		GroupingThreshold: st.GroupingThreshold,
	})
	res.Active = len(ev.ActiveKeys)

	for i, g := range ev.Grouped {
		if s.out.Dispatch(ctx, notifier.Grouped, st.Format.GroupedDown(g)).Interrupted() {
			return s.abandon(ctx, res, "grouped alerts", len(ev.Grouped)-i+len(ev.Individual))
		}
		s.Groups.Put(Down, g)
		s.upsert(ctx, g.Users...)
		s.metrics.Alert("grouped")
		res.Alerts++
		if ctx.Err() != nil {
			return s.abandon(ctx, res, "grouped alerts", len(ev.Grouped)-i-1+len(ev.Individual))
		}
	}
	for i, r := range ev.Individual {
		if s.out.Dispatch(ctx, notifier.Individual, st.Format.IndividualDown(r)).Interrupted() {
			return s.abandon(ctx, res, "individual alerts", len(ev.Individual)-i)
		}
		s.upsert(ctx, r)
		s.metrics.Alert("individual")
		res.Alerts++
		if ctx.Err() != nil {
			return s.abandon(ctx, res, "individual alerts", len(ev.Individual)-i-1)
		}
	}

	// Every upserted key is active, so this is still the pre-purge view.
	rec := DetectRecoveries(s.store.Notified(), ev.ActiveKeys, st.GroupingThreshold)
	for i, g := range rec.Grouped {
		if s.out.Dispatch(ctx, notifier.Grouped, st.Format.GroupedUp(g)).Interrupted() {
			return s.abandon(ctx, res, "grouped recoveries", len(rec.Grouped)-i+len(rec.Individual))
		}
		s.Groups.Put(Up, g)
		s.metrics.Recovery("grouped")
		res.Recoveries++
	}
	for i, r := range rec.Individual {
		if s.out.Dispatch(ctx, notifier.Individual, st.Format.IndividualUp(r)).Interrupted() {
			return s.abandon(ctx, res, "individual recoveries", len(rec.Individual)-i)
		}
		s.metrics.Recovery("individual")
		res.Recoveries++
	}

	// A recovery sent just before cancellation is resent next cycle; the
	// purge must not run on a context that is already gone.
	if ctx.Err() != nil {
		return s.abandon(ctx, res, "purge", res.Recoveries)
	}
	if err := s.store.PurgeNotified(ctx, ev.ActiveKeys); err != nil {
		s.log.Debug("purge not persisted yet", logx.Err(err))
	}
	res.Tracked = s.store.Notified().Len()

	s.metrics.CycleDone(time.Since(start), res.Tracked)
	if res.Alerts > 0 || res.Recoveries > 0 {
		s.log.Info("cycle done",
			logx.Int("fetched", res.Fetched),
			logx.Int("active", res.Active),
			logx.Int("alerts", res.Alerts),
			logx.Int("recoveries", res.Recoveries),
		)
	} else {
		s.log.Debug("cycle done", logx.Int("fetched", res.Fetched), logx.Int("active", res.Active))
	}
	s.publish(eventbus.CycleCompleted, res)
	return res
}

// abandon ends a cycle whose context was cancelled mid-dispatch. Pending
// messages are neither upserted nor purged so the next cycle sends them.
func (s *Service) abandon(ctx context.Context, res CycleResult, stage string, pending int) CycleResult {
	res.Skipped = true
	res.Error = ctx.Err().Error()
	res.Tracked = s.store.Notified().Len()
	s.log.Warn("cycle interrupted; pending messages left for next cycle",
		logx.String("stage", stage),
		logx.Int("pending", pending),
		logx.Int("sent_alerts", res.Alerts),
		logx.Err(ctx.Err()),
	)
	s.metrics.CycleSkipped()
	s.publish(eventbus.CycleSkipped, res)
	return res
}

func (s *Service) upsert(ctx context.Context, recs ...OfflineRecord) {
	// The store keeps the value in memory on failure and warns operators.
	if err := s.store.UpsertNotified(ctx, recs...); err != nil {
		s.log.Debug("notified upsert not persisted yet", logx.Int("users", len(recs)), logx.Err(err))
	}
}

func (s *Service) publish(typ string, res CycleResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: res})
}
