package auth

import (
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock for deterministic timeout tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testParams is a deliberately cheap work factor so the suite stays fast.
func testParams() Argon2idParams {
	return Argon2idParams{Time: 1, MemoryKiB: 16, Parallelism: 1, KeyLen: 32}
}
