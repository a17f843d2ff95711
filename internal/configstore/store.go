package configstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"linkwatch/internal/eventbus"
	"linkwatch/internal/metrics"
	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/storage"
	"linkwatch/internal/transport/channelid"
	logx "linkwatch/pkg/logx"
)

// Store holds the durable records in memory and writes every change
// through to the backend.
//
// The in-memory copy is authoritative. A write that keeps failing after its
// retries leaves the record dirty; Flush retries dirty records later.
type Store struct {
	backend storage.Store
	opts    Options
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	// Devices is the volatile sender -> target mapping.
	Devices *DeviceCache

	stateMu sync.Mutex
	state   MonitorState

	blMu      sync.RWMutex
	blacklist Blacklist

	tgMu    sync.RWMutex
	targets Targets

	// writeMu serializes writes per record so a stale snapshot never lands last.
	writeMu map[string]*sync.Mutex

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

func New(backend storage.Store, opts Options, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		backend: backend,
		opts:    opts.withDefaults(),
		log:     log,
		bus:     bus,
		metrics: m,
		Devices: NewDeviceCache(),
		state:   MonitorState{Notified: monitor.Notified{}, LastReports: map[string]string{}},
		writeMu: map[string]*sync.Mutex{
			RecordState:     {},
			RecordBlacklist: {},
			RecordTargets:   {},
		},
		dirty: map[string]bool{},
	}
}

// Load reads every record, seeding missing or unusable values from d.
// Seeded and migrated records are written back.
func (s *Store) Load(ctx context.Context, d Defaults) error {
	var seed []string

	st, found, err := s.readState(ctx)
	if err != nil {
		return err
	}
	if !found {
		seed = append(seed, RecordState)
	}
	if st.Notified == nil {
		st.Notified = monitor.Notified{}
	}
	if st.LastReports == nil {
		st.LastReports = map[string]string{}
	}
	if !st.Threshold.Valid() {
		st.Threshold = d.Threshold
		if found {
			seed = append(seed, RecordState)
		}
	}
	if len(st.ScheduleTimes) == 0 {
		st.ScheduleTimes = append([]string(nil), d.Schedule...)
		if found {
			seed = append(seed, RecordState)
		}
	}
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()

	var bl Blacklist
	switch raw, err := s.backend.Get(ctx, RecordBlacklist); {
	case errors.Is(err, storage.ErrNotFound):
		seed = append(seed, RecordBlacklist)
	case err != nil:
		return fmt.Errorf("load blacklist: %w", err)
	default:
		if err := sonic.Unmarshal(raw, &bl); err != nil {
			return fmt.Errorf("decode blacklist: %w", err)
		}
	}
	s.blMu.Lock()
	s.blacklist = bl
	s.blMu.Unlock()

	var tg Targets
	switch raw, err := s.backend.Get(ctx, RecordTargets); {
	case errors.Is(err, storage.ErrNotFound):
		tg.Entries = append(tg.Entries, d.Targets...)
		seed = append(seed, RecordTargets)
	case err != nil:
		return fmt.Errorf("load targets: %w", err)
	default:
		var migrated bool
		tg, migrated, err = decodeTargets(raw)
		if err != nil {
			return fmt.Errorf("decode targets: %w", err)
		}
		if migrated {
			s.log.Info("targets migrated to typed entries", logx.Int("count", len(tg.Entries)))
			seed = append(seed, RecordTargets)
		}
	}
	s.tgMu.Lock()
	s.targets = tg
	s.tgMu.Unlock()

	for _, name := range dedupStrings(seed) {
		// Failure here is already logged and leaves the record dirty.
		_ = s.persist(ctx, name)
	}

	s.log.Info("records loaded",
		logx.Int("notified", st.Notified.Len()),
		logx.Int("blacklist", len(bl.Users)),
		logx.Int("targets", len(tg.Entries)),
		logx.Any("schedule", st.ScheduleTimes),
	)
	return nil
}

func (s *Store) readState(ctx context.Context) (MonitorState, bool, error) {
	var st MonitorState
	raw, err := s.backend.Get(ctx, RecordState)
	if errors.Is(err, storage.ErrNotFound) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("load state: %w", err)
	}
	if err := sonic.Unmarshal(raw, &st); err != nil {
		return st, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

// decodeTargets accepts {"entries":[...]} and the legacy {"ids":[...]}
// whose items are plain ids or {id,type} objects.
func decodeTargets(raw []byte) (Targets, bool, error) {
	var doc struct {
		Entries []notifier.Target `json:"entries"`
		IDs     []any             `json:"ids"`
	}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return Targets{}, false, err
	}
	if doc.IDs == nil {
		return Targets{Entries: normalizeTargets(doc.Entries)}, false, nil
	}
	out := append([]notifier.Target(nil), doc.Entries...)
	for _, it := range doc.IDs {
		switch v := it.(type) {
		case string:
			out = append(out, notifier.Target{ID: v, Type: notifier.All})
		case map[string]any:
			id, _ := v["id"].(string)
			typ, _ := v["type"].(string)
			out = append(out, notifier.Target{ID: id, Type: notifier.ParseSubscriptionType(typ)})
		}
	}
	return Targets{Entries: normalizeTargets(out)}, true, nil
}

func normalizeTargets(in []notifier.Target) []notifier.Target {
	out := make([]notifier.Target, 0, len(in))
	seen := map[string]bool{}
	for _, t := range in {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t.Type = notifier.ParseSubscriptionType(string(t.Type))
		out = append(out, t)
	}
	return out
}

// ---- reads ----

// Notified returns a copy of the notified state.
func (s *Store) Notified() monitor.Notified {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.Notified.Clone()
}

func (s *Store) Threshold() monitor.Threshold {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.Threshold
}

func (s *Store) ScheduleTimes() []string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return append([]string(nil), s.state.ScheduleTimes...)
}

func (s *Store) LastReports() map[string]string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := make(map[string]string, len(s.state.LastReports))
	for k, v := range s.state.LastReports {
		out[k] = v
	}
	return out
}

func (s *Store) Blacklist() []string {
	s.blMu.RLock()
	defer s.blMu.RUnlock()
	return append([]string(nil), s.blacklist.Users...)
}

func (s *Store) Targets() []notifier.Target {
	s.tgMu.RLock()
	defer s.tgMu.RUnlock()
	return append([]notifier.Target(nil), s.targets.Entries...)
}

// ---- mutations ----

// UpsertNotified records that an alert went out for each record.
func (s *Store) UpsertNotified(ctx context.Context, recs ...monitor.OfflineRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.stateMu.Lock()
	for _, r := range recs {
		s.state.Notified.Set(r.Router, r.User, r.OfflineSince)
	}
	s.stateMu.Unlock()
	return s.persist(ctx, RecordState)
}

// PurgeNotified keeps only the pairs present in active.
func (s *Store) PurgeNotified(ctx context.Context, active monitor.KeySet) error {
	s.stateMu.Lock()
	before := s.state.Notified.Len()
	s.state.Notified.Purge(active)
	changed := s.state.Notified.Len() != before
	s.stateMu.Unlock()
	if !changed {
		return nil
	}
	return s.persist(ctx, RecordState)
}

func (s *Store) SetThreshold(ctx context.Context, t monitor.Threshold) error {
	s.stateMu.Lock()
	s.state.Threshold = t
	s.stateMu.Unlock()
	return s.persist(ctx, RecordState)
}

func (s *Store) SetSchedule(ctx context.Context, labels []string) error {
	s.stateMu.Lock()
	s.state.ScheduleTimes = append([]string(nil), labels...)
	s.stateMu.Unlock()
	return s.persist(ctx, RecordState)
}

// RecordReport stores when the report for label was sent.
func (s *Store) RecordReport(ctx context.Context, label string, at time.Time) error {
	s.stateMu.Lock()
	s.state.LastReports[label] = at.Format(time.RFC3339)
	s.stateMu.Unlock()
	return s.persist(ctx, RecordState)
}

// AddBlacklist adds user unless an equal (case-insensitive) entry exists.
func (s *Store) AddBlacklist(ctx context.Context, user string) (bool, error) {
	user = strings.TrimSpace(user)
	s.blMu.Lock()
	if user == "" || monitor.IsBlacklisted(s.blacklist.Users, user) {
		s.blMu.Unlock()
		return false, nil
	}
	s.blacklist.Users = append(s.blacklist.Users, user)
	s.blMu.Unlock()
	return true, s.persist(ctx, RecordBlacklist)
}

func (s *Store) RemoveBlacklist(ctx context.Context, user string) (bool, error) {
	user = strings.ToLower(strings.TrimSpace(user))
	s.blMu.Lock()
	kept := s.blacklist.Users[:0:0]
	for _, u := range s.blacklist.Users {
		if strings.ToLower(strings.TrimSpace(u)) != user {
			kept = append(kept, u)
		}
	}
	removed := len(kept) != len(s.blacklist.Users)
	s.blacklist.Users = kept
	s.blMu.Unlock()
	if !removed {
		return false, nil
	}
	return true, s.persist(ctx, RecordBlacklist)
}

// AddTarget is idempotent by id.
func (s *Store) AddTarget(ctx context.Context, t notifier.Target) (bool, error) {
	t.ID = strings.TrimSpace(t.ID)
	t.Type = notifier.ParseSubscriptionType(string(t.Type))
	s.tgMu.Lock()
	for _, e := range s.targets.Entries {
		if e.ID == t.ID {
			s.tgMu.Unlock()
			return false, nil
		}
	}
	s.targets.Entries = append(s.targets.Entries, t)
	s.tgMu.Unlock()
	return true, s.persist(ctx, RecordTargets)
}

// RemoveTarget deletes id and every device mapping that points at it.
func (s *Store) RemoveTarget(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	s.tgMu.Lock()
	kept := s.targets.Entries[:0:0]
	for _, e := range s.targets.Entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	removed := len(kept) != len(s.targets.Entries)
	s.targets.Entries = kept
	s.tgMu.Unlock()
	if !removed {
		return false, nil
	}
	if n := s.Devices.PurgeTarget(id); n > 0 {
		s.log.Debug("device mappings purged", logx.String("target", id), logx.Int("count", n))
	}
	return true, s.persist(ctx, RecordTargets)
}

// FindTarget resolves a chat id to a target id: direct match, then the
// device cache, then phone digits.
func (s *Store) FindTarget(chatID string) (string, bool) {
	targets := s.Targets()
	norm := channelid.Normalize(chatID)
	for _, t := range targets {
		if channelid.Normalize(t.ID) == norm {
			return t.ID, true
		}
	}
	if id, ok := s.Devices.Lookup(chatID); ok {
		return id, true
	}
	for _, t := range targets {
		if channelid.Equal(t.ID, chatID) {
			return t.ID, true
		}
	}
	return "", false
}

// LearnDevice maps an observed sender id onto targetID.
func (s *Store) LearnDevice(observedID, targetID string) { s.Devices.Learn(observedID, targetID) }

// ---- persistence ----

func (s *Store) encode(name string) ([]byte, error) {
	switch name {
	case RecordState:
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		return sonic.ConfigStd.MarshalIndent(s.state, "", "  ")
	case RecordBlacklist:
		s.blMu.RLock()
		defer s.blMu.RUnlock()
		bl := s.blacklist
		if bl.Users == nil {
			bl.Users = []string{}
		}
		return sonic.ConfigStd.MarshalIndent(bl, "", "  ")
	case RecordTargets:
		s.tgMu.RLock()
		defer s.tgMu.RUnlock()
		tg := s.targets
		if tg.Entries == nil {
			tg.Entries = []notifier.Target{}
		}
		return sonic.ConfigStd.MarshalIndent(tg, "", "  ")
	default:
		return nil, fmt.Errorf("configstore: unknown record %q", name)
	}
}

// persist writes the current value of a record, retrying with a linear
// backoff. On exhaustion the record stays dirty and operators are warned.
func (s *Store) persist(ctx context.Context, name string) error {
	wm := s.writeMu[name]
	wm.Lock()
	defer wm.Unlock()

	data, err := s.encode(name)
	if err != nil {
		return err
	}

	attempts := s.opts.WriteRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		err = s.backend.Put(wctx, name, data)
		cancel()
		if err == nil {
			s.setDirty(name, false)
			return nil
		}
		s.log.Debug("record write failed", logx.String("record", name), logx.Int("attempt", attempt), logx.Err(err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			attempt = attempts
		case <-time.After(s.opts.RetryDelay * time.Duration(attempt)):
		}
	}

	s.setDirty(name, true)
	s.metrics.PersistFailed(name)
	s.log.Error("record not persisted; keeping in-memory state and retrying later",
		logx.String("record", name), logx.Int("attempts", attempts), logx.Err(err))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.PersistFailed, Time: time.Now(), Data: PersistFailure{Record: name, Attempts: attempts, Error: err.Error()}})
	}
	return fmt.Errorf("persist %s: %w", name, err)
}

func (s *Store) setDirty(name string, v bool) {
	s.dirtyMu.Lock()
	if v {
		s.dirty[name] = true
	} else {
		delete(s.dirty, name)
	}
	s.dirtyMu.Unlock()
}

// Dirty lists records whose latest value is not yet durable.
func (s *Store) Dirty() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Flush retries every dirty record.
func (s *Store) Flush(ctx context.Context) error {
	var errs []error
	for _, name := range s.Dirty() {
		if err := s.persist(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Audit appends an operator action; failures are logged only.
func (s *Store) Audit(ctx context.Context, e storage.AuditEntry) {
	if err := s.backend.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	out := in[:0:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
