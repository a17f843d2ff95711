package configstore

import (
	"time"

	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
)

// Record names in the backing store.
const (
	RecordState     = "state"
	RecordBlacklist = "blacklist"
	RecordTargets   = "targets"
)

// MonitorState is the durable monitoring record.
type MonitorState struct {
	Notified monitor.Notified `json:"notified"`
	// LastReports maps schedule label -> RFC3339 time of the last report sent.
	LastReports   map[string]string `json:"lastReports"`
	Threshold     monitor.Threshold `json:"threshold"`
	ScheduleTimes []string          `json:"scheduleTimes"`
}

type Blacklist struct {
	Users []string `json:"users"`
}

type Targets struct {
	Entries []notifier.Target `json:"entries"`
}

// Defaults seed records that do not exist yet.
type Defaults struct {
	Threshold monitor.Threshold
	Schedule  []string
	Targets   []notifier.Target
}

// Options controls write-through behavior.
type Options struct {
	WriteRetries int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteRetries <= 0 {
		o.WriteRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// PersistFailure is published when a record write exhausts its retries.
type PersistFailure struct {
	Record   string `json:"record"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}
