package configstore

import (
	"sync"

	"linkwatch/internal/transport/channelid"
)

// DeviceCache maps an observed sender identity to the target id it belongs
// to. It lives for the process lifetime only.
type DeviceCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewDeviceCache() *DeviceCache { return &DeviceCache{m: map[string]string{}} }

// Learn records that observedID belongs to targetID.
func (c *DeviceCache) Learn(observedID, targetID string) {
	observedID = channelid.Normalize(observedID)
	if observedID == "" || targetID == "" {
		return
	}
	c.mu.Lock()
	c.m[observedID] = targetID
	c.mu.Unlock()
}

func (c *DeviceCache) Lookup(observedID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.m[channelid.Normalize(observedID)]
	return t, ok
}

// PurgeTarget drops every mapping pointing at targetID and returns how many.
func (c *DeviceCache) PurgeTarget(targetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, v := range c.m {
		if v == targetID || channelid.Normalize(v) == channelid.Normalize(targetID) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *DeviceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
