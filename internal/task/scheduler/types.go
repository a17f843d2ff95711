package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"linkwatch/internal/eventbus"
	logx "linkwatch/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone       string // IANA TZ, e.g. "Asia/Jakarta"
	DefaultTimeout time.Duration
	HistorySize    int
}

type Job func(ctx context.Context) error

type OverlapPolicy int

const (
	// OverlapSkipIfRunning drops a trigger while the previous run is in flight.
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

type TaskOptions struct {
	Overlap OverlapPolicy
}

type scheduleDef struct {
	id      string
	name    string
	group   string
	gen     uint64
	spec    string
	timeout time.Duration
	job     Job
	opt     TaskOptions
	entryID cron.EntryID
	running atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef
	gens   map[string]uint64

	// base is the parent context of every run; set by Start.
	base context.Context

	hmu     sync.Mutex
	history []HistoryItem
}

type HistoryItem struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Group   string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
