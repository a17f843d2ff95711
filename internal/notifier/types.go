package notifier

import (
	"errors"
	"strings"
	"time"
)

// ErrNoTargets is reported in DispatchResult.Err when no target accepts
// the category.
var ErrNoTargets = errors.New("notifier: no eligible targets")

// Category classifies an outbound message for target eligibility.
type Category string

const (
	Individual Category = "individual"
	Grouped    Category = "grouped"
	Report     Category = "report"
)

// SubscriptionType is what a target opted into.
type SubscriptionType string

const (
	// All receives every category.
	All SubscriptionType = "all"
	// Link receives grouped link-level messages only.
	Link SubscriptionType = "link"
)

// ParseSubscriptionType falls back to All for empty or unknown input.
func ParseSubscriptionType(s string) SubscriptionType {
	if SubscriptionType(strings.ToLower(strings.TrimSpace(s))) == Link {
		return Link
	}
	return All
}

// Eligible reports whether a target of type t receives category c.
func (t SubscriptionType) Eligible(c Category) bool {
	switch c {
	case Grouped:
		return t == All || t == Link
	case Individual, Report:
		return t == All
	default:
		return false
	}
}

// Target is one subscribed notification channel.
type Target struct {
	ID   string           `json:"id"`
	Type SubscriptionType `json:"type"`
}

// DefaultSendGap spaces consecutive sends when Config.SendGap is unset.
const DefaultSendGap = 500 * time.Millisecond

// Config controls dispatch pacing.
type Config struct {
	// SendGap is the minimum spacing between consecutive sends, across dispatch calls.
	SendGap     time.Duration
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At       time.Time
	Category Category
	Text     string
	Sent     int
}

// Failure is one target that could not be reached.
type Failure struct {
	TargetID string
	Err      error
}

// DispatchResult summarizes one Dispatch call.
type DispatchResult struct {
	Category Category
	Eligible int
	Sent     []string
	Failed   []Failure
	// Err is ErrNoTargets, or the context error when the fan-out was cut
	// short. Plain per-target failures leave it nil.
	Err error
}

// Interrupted reports whether cancellation stopped the fan-out before every
// eligible target was tried.
func (d DispatchResult) Interrupted() bool {
	return d.Err != nil && !errors.Is(d.Err, ErrNoTargets)
}

// NotificationEvent is emitted on the event bus per target send.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	Category Category  `json:"category"`
	TargetID string    `json:"target_id"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
