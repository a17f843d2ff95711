package monitor

import (
	"sort"
	"strings"
	"time"
)

// Params are the configuration inputs of one evaluation.
type Params struct {
	Routers           []string
	Blacklist         []string
	Threshold         Threshold
	GroupingThreshold int
}

// Evaluate turns a snapshot of offline records into the alerts that still
// need to be sent. It is pure: notified is only read.
func Evaluate(snapshot []OfflineRecord, notified Notified, p Params) Evaluation {
	routers := make(map[string]struct{}, len(p.Routers))
	for _, r := range p.Routers {
		routers[r] = struct{}{}
	}
	blocked := blacklistSet(p.Blacklist)

	ev := Evaluation{ActiveKeys: KeySet{}}
	for _, rec := range snapshot {
		if _, ok := routers[rec.Router]; !ok {
			continue
		}
		if _, ok := blocked[strings.ToLower(rec.User)]; ok {
			continue
		}
		if !p.Threshold.Contains(rec.DurationMinutes) {
			continue
		}
		ev.ActiveKeys.Add(rec.Key())

		if prev, ok := notified.Get(rec.Router, rec.User); ok && prev == rec.OfflineSince {
			continue
		}
		ev.NewAlerts = append(ev.NewAlerts, rec)
	}

	ev.Grouped, ev.Individual = partition(ev.NewAlerts, p.GroupingThreshold)
	return ev
}

// DetectRecoveries reports every tracked pair missing from active.
// It must run against the state as it was before purging.
func DetectRecoveries(notified Notified, active KeySet, groupingThreshold int) Recoveries {
	routers := make([]string, 0, len(notified))
	for r := range notified {
		routers = append(routers, r)
	}
	sort.Strings(routers)

	var gone []OfflineRecord
	for _, router := range routers {
		users := make([]string, 0, len(notified[router]))
		for u := range notified[router] {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			if active.Has(Key(router, u)) {
				continue
			}
			since := notified[router][u]
			gone = append(gone, OfflineRecord{Router: router, User: u, OfflineSince: since, Since: ParseSince(since)})
		}
	}

	var rec Recoveries
	rec.Grouped, rec.Individual = partition(gone, groupingThreshold)
	return rec
}

// IsBlacklisted compares case-insensitively.
func IsBlacklisted(blacklist []string, user string) bool {
	u := strings.ToLower(strings.TrimSpace(user))
	for _, b := range blacklist {
		if strings.ToLower(strings.TrimSpace(b)) == u {
			return true
		}
	}
	return false
}

func blacklistSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, b := range list {
		out[strings.ToLower(strings.TrimSpace(b))] = struct{}{}
	}
	return out
}

// ParseSince parses a source timestamp. Unknown formats yield the zero time.
func ParseSince(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
