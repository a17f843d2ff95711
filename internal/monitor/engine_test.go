package monitor

import (
	"fmt"
	"testing"
)

var defaultParams = Params{
	Routers:           []string{"R1", "R2"},
	Threshold:         Threshold{MinMinutes: 15, MaxMinutes: 300},
	GroupingThreshold: DefaultGroupingThreshold,
}

func rec(router, user, since string, minutes float64) OfflineRecord {
	return OfflineRecord{Router: router, User: user, OfflineSince: since, Since: ParseSince(since), DurationMinutes: minutes}
}

func prefixed(router, prefix string, n int, since string) []OfflineRecord {
	out := make([]OfflineRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, rec(router, fmt.Sprintf("%s-%02d", prefix, i), since, 20))
	}
	return out
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"BRN-01":  "BRN",
		"A-x":     "A",
		"brn-01":  "",
		"BRN01":   "",
		"BRN":     "",
		"-BRN":    "",
		"Br-1":    "",
		"PGK-":    "PGK",
		"budi":    "",
		"ABC-DEF": "ABC",
	}
	for in, want := range tests {
		if got := Prefix(in); got != want {
			t.Fatalf("Prefix(%q)=%q want %q", in, got, want)
		}
	}
}

func TestEvaluateFilters(t *testing.T) {
	t.Parallel()

	p := defaultParams
	p.Blacklist = []string{"Guest"}
	snap := []OfflineRecord{
		rec("R1", "kept", "t", 20),
		rec("R9", "other-router", "t", 20),
		rec("R1", "GUEST", "t", 20),
		rec("R1", "short", "t", 14.9),
		rec("R1", "long", "t", 300.1),
	}
	ev := Evaluate(snap, Notified{}, p)
	if len(ev.ActiveKeys) != 1 || !ev.ActiveKeys.Has(Key("R1", "kept")) {
		t.Fatalf("active=%v", ev.ActiveKeys)
	}
	if len(ev.Individual) != 1 || ev.Individual[0].User != "kept" {
		t.Fatalf("individual=%+v", ev.Individual)
	}
}

func TestThresholdBoundsAreInclusive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minutes float64
		want    bool
	}{
		{14, false},
		{15, true},
		{300, true},
		{301, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.minutes), func(t *testing.T) {
			ev := Evaluate([]OfflineRecord{rec("R1", "u", "t", tt.minutes)}, Notified{}, defaultParams)
			if got := len(ev.NewAlerts) == 1; got != tt.want {
				t.Fatalf("minutes=%v alerted=%v want %v", tt.minutes, got, tt.want)
			}
		})
	}
}

func TestDedupByValue(t *testing.T) {
	t.Parallel()

	notified := Notified{}
	notified.Set("R1", "u", "2024-05-01T08:00:00Z")

	same := Evaluate([]OfflineRecord{rec("R1", "u", "2024-05-01T08:00:00Z", 20)}, notified, defaultParams)
	if len(same.NewAlerts) != 0 {
		t.Fatalf("same offlineSince must not re-alert")
	}
	if !same.ActiveKeys.Has(Key("R1", "u")) {
		t.Fatalf("deduped record must stay active")
	}

	changed := Evaluate([]OfflineRecord{rec("R1", "u", "2024-05-01T09:30:00Z", 20)}, notified, defaultParams)
	if len(changed.NewAlerts) != 1 {
		t.Fatalf("new offlineSince must re-alert")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	t.Parallel()

	snap := append(prefixed("R1", "BRN", 12, "2024-05-01T08:00:00Z"), rec("R2", "solo", "2024-05-01T08:00:00Z", 30))
	notified := Notified{}
	first := Evaluate(snap, notified, defaultParams)
	for _, r := range first.NewAlerts {
		notified.Set(r.Router, r.User, r.OfflineSince)
	}
	second := Evaluate(snap, notified, defaultParams)
	if len(second.NewAlerts) != 0 || len(second.Grouped) != 0 || len(second.Individual) != 0 {
		t.Fatalf("second evaluation produced alerts: %+v", second)
	}
	if len(second.ActiveKeys) != len(first.ActiveKeys) {
		t.Fatalf("active keys changed")
	}
}

func TestGroupingBoundary(t *testing.T) {
	t.Parallel()

	nine := Evaluate(prefixed("R1", "PGK", 9, "t"), Notified{}, defaultParams)
	if len(nine.Grouped) != 0 || len(nine.Individual) != 9 {
		t.Fatalf("9 users: grouped=%d individual=%d", len(nine.Grouped), len(nine.Individual))
	}
	ten := Evaluate(prefixed("R1", "PGK", 10, "t"), Notified{}, defaultParams)
	if len(ten.Grouped) != 1 || len(ten.Individual) != 0 || len(ten.Grouped[0].Users) != 10 {
		t.Fatalf("10 users: grouped=%d individual=%d", len(ten.Grouped), len(ten.Individual))
	}
}

func TestGroupingIsPerRouter(t *testing.T) {
	t.Parallel()

	snap := append(prefixed("R1", "BRN", 6, "t"), prefixed("R2", "BRN", 6, "t")...)
	ev := Evaluate(snap, Notified{}, defaultParams)
	if len(ev.Grouped) != 0 || len(ev.Individual) != 12 {
		t.Fatalf("same prefix on two routers must not merge: %+v", ev)
	}
}

func TestGroupOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	snap := append(prefixed("R2", "AAA", 10, "t"), prefixed("R1", "ZZZ", 10, "t")...)
	snap = append(snap, prefixed("R1", "BBB", 10, "t")...)
	ev := Evaluate(snap, Notified{}, defaultParams)
	got := make([]string, 0, len(ev.Grouped))
	for _, g := range ev.Grouped {
		got = append(got, g.Router+"/"+g.Prefix)
	}
	want := []string{"R1/BBB", "R1/ZZZ", "R2/AAA"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order=%v want %v", got, want)
	}
}

func TestRecoverySymmetry(t *testing.T) {
	t.Parallel()

	notified := Notified{}
	notified.Set("R1", "a", "t1")
	notified.Set("R1", "b", "t2")
	active := KeySet{}
	active.Add(Key("R1", "a"))

	rec := DetectRecoveries(notified, active, DefaultGroupingThreshold)
	if len(rec.Individual) != 1 || rec.Individual[0].User != "b" {
		t.Fatalf("recoveries=%+v", rec)
	}

	notified.Purge(active)
	again := DetectRecoveries(notified, active, DefaultGroupingThreshold)
	if !again.Empty() {
		t.Fatalf("recovery reported twice: %+v", again)
	}
}

func TestGroupedRecovery(t *testing.T) {
	t.Parallel()

	notified := Notified{}
	for i := 1; i <= 11; i++ {
		notified.Set("R1", fmt.Sprintf("BRN-%02d", i), "t")
	}
	notified.Set("R1", "solo", "t")

	rec := DetectRecoveries(notified, KeySet{}, DefaultGroupingThreshold)
	if len(rec.Grouped) != 1 || len(rec.Grouped[0].Users) != 11 || rec.Grouped[0].Prefix != "BRN" {
		t.Fatalf("grouped=%+v", rec.Grouped)
	}
	if len(rec.Individual) != 1 || rec.Individual[0].User != "solo" {
		t.Fatalf("individual=%+v", rec.Individual)
	}
}

func TestThresholdValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		th   Threshold
		want bool
	}{
		{Threshold{15, 300}, true},
		{Threshold{0, 300}, false},
		{Threshold{10, 10}, false},
		{Threshold{20, 10}, false},
	}
	for _, tt := range tests {
		if got := tt.th.Valid(); got != tt.want {
			t.Fatalf("%+v.Valid()=%v want %v", tt.th, got, tt.want)
		}
	}
}
