package source

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/guregu/null/v5"

	"linkwatch/internal/monitor"
	logx "linkwatch/pkg/logx"
)

// Entries stay raw so one mistyped row is dropped instead of failing the
// whole snapshot.
type offlinePayload struct {
	Users []json.RawMessage `json:"users"`
}

type offlineEntry struct {
	Router          null.String `json:"router"`
	User            null.String `json:"user"`
	OfflineSince    null.String `json:"offlineSince"`
	DurationMinutes null.Float  `json:"durationMinutes"`
}

// FetchOffline returns every currently offline user. On failure it returns
// an empty slice and an error wrapping ErrExhausted or the decode error.
func (c *Client) FetchOffline(ctx context.Context) ([]monitor.OfflineRecord, error) {
	body, err := c.getWithRetry(ctx, "offline", c.cfg.OfflineURL)
	if err != nil {
		return []monitor.OfflineRecord{}, err
	}
	var p offlinePayload
	if err := decode(body, &p); err != nil {
		c.metrics.FetchFailed("offline")
		return []monitor.OfflineRecord{}, err
	}
	recs, dropped := parseOffline(p)
	if dropped > 0 {
		c.log.Warn("offline entries dropped", logx.Int("dropped", dropped), logx.Int("kept", len(recs)))
	}
	return recs, nil
}

// parseOffline keeps entries that decode and carry a router, a user and a
// finite non-negative duration.
func parseOffline(p offlinePayload) ([]monitor.OfflineRecord, int) {
	out := make([]monitor.OfflineRecord, 0, len(p.Users))
	dropped := 0
	for _, raw := range p.Users {
		var e offlineEntry
		if err := decode(raw, &e); err != nil {
			dropped++
			continue
		}
		router := strings.TrimSpace(e.Router.ValueOrZero())
		user := strings.TrimSpace(e.User.ValueOrZero())
		d := e.DurationMinutes.ValueOrZero()
		if router == "" || user == "" || !e.DurationMinutes.Valid || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			dropped++
			continue
		}
		since := strings.TrimSpace(e.OfflineSince.ValueOrZero())
		out = append(out, monitor.OfflineRecord{
			Router:          router,
			User:            user,
			OfflineSince:    since,
			Since:           monitor.ParseSince(since),
			DurationMinutes: d,
		})
	}
	return out, dropped
}
