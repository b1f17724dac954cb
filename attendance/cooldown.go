package attendance

import (
	"sync"
	"time"
)

const (
	DefaultRawLogWindow       = 90 * time.Second
	DefaultSyncWindow         = 5 * time.Second
	DefaultUnknownAlertWindow = 15 * time.Second
)

// CooldownPolicy rate-limits an action per key. A key may act when it has never
// acted or when strictly more than Window has elapsed since it last did.
type CooldownPolicy struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldownPolicy(window time.Duration) *CooldownPolicy {
	return &CooldownPolicy{
		window: window,
		last:   make(map[string]time.Time),
	}
}

func (c *CooldownPolicy) Window() time.Duration {
	return c.window
}

func (c *CooldownPolicy) ShouldAct(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldActLocked(key, now)
}

func (c *CooldownPolicy) Record(key string, now time.Time) {
	c.mu.Lock()
	c.last[key] = now
	c.mu.Unlock()
}

// TryAcquire checks and records in one step. Concurrent callers for the same
// key within the window see exactly one true.
func (c *CooldownPolicy) TryAcquire(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.shouldActLocked(key, now) {
		return false
	}
	c.last[key] = now
	return true
}

func (c *CooldownPolicy) Forget(key string) {
	c.mu.Lock()
	delete(c.last, key)
	c.mu.Unlock()
}

func (c *CooldownPolicy) Reset() {
	c.mu.Lock()
	c.last = make(map[string]time.Time)
	c.mu.Unlock()
}

func (c *CooldownPolicy) shouldActLocked(key string, now time.Time) bool {
	last, ok := c.last[key]
	if !ok {
		return true
	}
	return now.Sub(last) > c.window
}
