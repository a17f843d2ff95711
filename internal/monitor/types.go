package monitor

import (
	"math"
	"time"
)

// DefaultGroupingThreshold is the number of same-prefix users on one router
// at which alerts collapse into a single grouped message.
const DefaultGroupingThreshold = 10

// OfflineRecord is one currently-offline connection reported by the source.
type OfflineRecord struct {
	Router string
	User   string
	// OfflineSince is the raw timestamp from the source. It is the dedup value.
	OfflineSince string
	// Since is OfflineSince parsed; zero when missing or unparseable.
	Since           time.Time
	DurationMinutes float64
}

func (r OfflineRecord) Key() string { return Key(r.Router, r.User) }

// Key builds the identity of a (router, user) pair.
func Key(router, user string) string { return router + "::" + user }

// Threshold is the inclusive duration window, in minutes, that qualifies an outage.
type Threshold struct {
	MinMinutes float64 `json:"minMinutes"`
	MaxMinutes float64 `json:"maxMinutes"`
}

func (t Threshold) Contains(minutes float64) bool {
	return minutes >= t.MinMinutes && minutes <= t.MaxMinutes
}

// Valid reports whether the window is usable: finite, min > 0 and max > min.
func (t Threshold) Valid() bool {
	if math.IsNaN(t.MinMinutes) || math.IsInf(t.MinMinutes, 0) ||
		math.IsNaN(t.MaxMinutes) || math.IsInf(t.MaxMinutes, 0) {
		return false
	}
	return t.MinMinutes > 0 && t.MaxMinutes > t.MinMinutes
}

// Notified maps router -> user -> offlineSince of the last alert sent.
type Notified map[string]map[string]string

func (n Notified) Get(router, user string) (string, bool) {
	users, ok := n[router]
	if !ok {
		return "", false
	}
	v, ok := users[user]
	return v, ok
}

func (n Notified) Set(router, user, offlineSince string) {
	users := n[router]
	if users == nil {
		users = map[string]string{}
		n[router] = users
	}
	users[user] = offlineSince
}

// Len counts tracked (router, user) pairs.
func (n Notified) Len() int {
	c := 0
	for _, users := range n {
		c += len(users)
	}
	return c
}

func (n Notified) Clone() Notified {
	out := make(Notified, len(n))
	for router, users := range n {
		cp := make(map[string]string, len(users))
		for u, v := range users {
			cp[u] = v
		}
		out[router] = cp
	}
	return out
}

// Purge drops every pair whose key is not in active, and empty routers.
func (n Notified) Purge(active KeySet) {
	for router, users := range n {
		for u := range users {
			if !active.Has(Key(router, u)) {
				delete(users, u)
			}
		}
		if len(users) == 0 {
			delete(n, router)
		}
	}
}

// KeySet is a set of Key values.
type KeySet map[string]struct{}

func (s KeySet) Add(k string)      { s[k] = struct{}{} }
func (s KeySet) Has(k string) bool { _, ok := s[k]; return ok }

// Group is a set of users on one router sharing a name prefix.
type Group struct {
	Router string
	Prefix string
	Users  []OfflineRecord
}

// Latest returns the most recent parsed offline time in the group.
func (g Group) Latest() time.Time {
	var latest time.Time
	for _, u := range g.Users {
		if u.Since.After(latest) {
			latest = u.Since
		}
	}
	return latest
}

// Evaluation is the outcome of one poll evaluation.
type Evaluation struct {
	ActiveKeys KeySet
	NewAlerts  []OfflineRecord
	Grouped    []Group
	Individual []OfflineRecord
}

// Recoveries are tracked outages that disappeared from the active set.
type Recoveries struct {
	Grouped    []Group
	Individual []OfflineRecord
}

func (r Recoveries) Empty() bool { return len(r.Grouped) == 0 && len(r.Individual) == 0 }
