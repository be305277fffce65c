package keys

import "sync"

// Cache is the session cache of derived drive keys, keyed by drive ID.
// It lives no longer than the operation that created it; Clear wipes it.
type Cache struct {
	mu   sync.Mutex
	keys map[string]*DriveKey
}

func NewCache() *Cache {
	return &Cache{keys: make(map[string]*DriveKey)}
}

// Get returns the cached key for driveID.
func (c *Cache) Get(driveID string) (*DriveKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[driveID]
	return k, ok
}

// Put caches key for driveID.
func (c *Cache) Put(driveID string, key *DriveKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[driveID] = key
}

// Forget zeroes and drops the key for driveID.
func (c *Cache) Forget(driveID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.keys[driveID]; ok {
		clear(k.b[:])
		delete(c.keys, driveID)
	}
}

// Clear zeroes and drops every cached key.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, k := range c.keys {
		clear(k.b[:])
		delete(c.keys, id)
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
