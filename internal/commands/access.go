package commands

import (
	"sync/atomic"

	"linkwatch/internal/transport/channelid"
)

// TargetFinder resolves a chat id to a subscribed target.
type TargetFinder interface {
	FindTarget(chatID string) (string, bool)
}

// Access answers admin and membership questions. An empty admin list
// makes everyone an admin.
type Access struct {
	admins  atomic.Pointer[[]string]
	targets TargetFinder
}

func NewAccess(admins []string, targets TargetFinder) *Access {
	a := &Access{targets: targets}
	a.SetAdmins(admins)
	return a
}

// SetAdmins swaps the admin list; used on config reload.
func (a *Access) SetAdmins(admins []string) {
	cp := make([]string, 0, len(admins))
	for _, id := range admins {
		if id = channelid.Normalize(id); id != "" {
			cp = append(cp, id)
		}
	}
	a.admins.Store(&cp)
}

func (a *Access) Admins() []string {
	return append([]string(nil), *a.admins.Load()...)
}

func (a *Access) IsAdmin(id string) bool {
	admins := *a.admins.Load()
	if len(admins) == 0 {
		return true
	}
	for _, adm := range admins {
		if channelid.Equal(adm, id) {
			return true
		}
	}
	return false
}

func (a *Access) IsMember(id string) bool {
	if a.targets == nil {
		return false
	}
	_, ok := a.targets.FindTarget(id)
	return ok
}
