package source

import (
	"context"
	"strings"

	"github.com/guregu/null/v5"
)

// RouterStatus is the aggregate state of one router.
type RouterStatus struct {
	Router string
	// Total and Running are null when the API omitted them.
	Total   null.Int
	Running null.Int
	Offline []string
}

type statusPayload struct {
	RouterName        null.String `json:"routerName"`
	Router            null.String `json:"router"`
	TotalInterfaces   null.Int    `json:"totalInterfaces"`
	RunningInterfaces null.Int    `json:"runningInterfaces"`
	OfflineList       []string    `json:"offlineList"`
}

// FetchStatus fetches the status of one router.
func (c *Client) FetchStatus(ctx context.Context, router string) (RouterStatus, error) {
	body, err := c.getWithRetry(ctx, "status", c.StatusURL(router))
	if err != nil {
		return RouterStatus{Router: router}, err
	}
	var p statusPayload
	if err := decode(body, &p); err != nil {
		c.metrics.FetchFailed("status")
		return RouterStatus{Router: router}, err
	}
	return parseStatus(router, p), nil
}

func parseStatus(router string, p statusPayload) RouterStatus {
	name := strings.TrimSpace(p.RouterName.ValueOrZero())
	if name == "" {
		name = strings.TrimSpace(p.Router.ValueOrZero())
	}
	if name == "" {
		name = router
	}
	offline := make([]string, 0, len(p.OfflineList))
	for _, u := range p.OfflineList {
		if u = strings.TrimSpace(u); u != "" {
			offline = append(offline, u)
		}
	}
	return RouterStatus{
		Router:  name,
		Total:   p.TotalInterfaces,
		Running: p.RunningInterfaces,
		Offline: offline,
	}
}
