package monitor

import (
	"sort"
	"strings"
	"sync"
)

// Direction selects the down (alert) or up (recovery) side of GroupCache.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// GroupCache remembers the member lists of the most recent grouped
// notifications per prefix, for /detail. It is not persisted.
type GroupCache struct {
	mu   sync.RWMutex
	down map[string]Group
	up   map[string]Group
}

func NewGroupCache() *GroupCache {
	return &GroupCache{down: map[string]Group{}, up: map[string]Group{}}
}

func (c *GroupCache) side(d Direction) map[string]Group {
	if d == Up {
		return c.up
	}
	return c.down
}

// Put replaces the entry for g.Prefix.
func (c *GroupCache) Put(d Direction, g Group) {
	cp := g
	cp.Users = append([]OfflineRecord(nil), g.Users...)
	c.mu.Lock()
	c.side(d)[strings.ToUpper(g.Prefix)] = cp
	c.mu.Unlock()
}

func (c *GroupCache) Get(d Direction, prefix string) (Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.side(d)[strings.ToUpper(strings.TrimSpace(prefix))]
	return g, ok
}

// Prefixes lists cached prefixes in sorted order.
func (c *GroupCache) Prefixes(d Direction) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.side(d)))
	for p := range c.side(d) {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
