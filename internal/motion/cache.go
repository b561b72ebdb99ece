package motion

import (
	"sync"
	"time"
)

// stateCache holds the last known state of every installed axis on one
// device. The background poll loop writes it; API reads are served from it
// so hardware round-trips stay off the request path.
//
// statusRefreshed tracks the last authoritative moving/servo read. Poll
// loops refresh positions every cycle but status flags less often, so
// position freshness and status freshness are tracked separately.
type stateCache struct {
	mu              sync.Mutex
	axes            map[string]AxisState
	statusRefreshed time.Time
}

func newStateCache(axes []string) *stateCache {
	c := &stateCache{axes: make(map[string]AxisState, len(axes))}
	now := time.Now()
	for _, a := range axes {
		c.axes[a] = AxisState{LastUpdated: now}
	}
	return c
}

// snapshot returns a copy of all axis states.
func (c *stateCache) snapshot() map[string]AxisState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]AxisState, len(c.axes))
	for k, v := range c.axes {
		out[k] = v
	}
	return out
}

func (c *stateCache) get(axis string) (AxisState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.axes[axis]
	return st, ok
}

// setPositions applies a batch position read.
func (c *stateCache) setPositions(positions map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for axis, pos := range positions {
		st, ok := c.axes[axis]
		if !ok {
			continue
		}
		st.Position = pos
		st.LastUpdated = now
		c.axes[axis] = st
	}
}

// setPosition applies a single-axis position read.
func (c *stateCache) setPosition(axis string, pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.axes[axis]
	if !ok {
		return
	}
	st.Position = pos
	st.LastUpdated = time.Now()
	c.axes[axis] = st
}

// setStatus applies a batch moving/servo read and stamps the status
// freshness clock. Either map may be nil when the cycle only refreshed
// one of the two.
func (c *stateCache) setStatus(moving, servo map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for axis, m := range moving {
		st, ok := c.axes[axis]
		if !ok {
			continue
		}
		st.Moving = m
		st.LastUpdated = now
		c.axes[axis] = st
	}
	for axis, s := range servo {
		st, ok := c.axes[axis]
		if !ok {
			continue
		}
		st.ServoEnabled = s
		st.LastUpdated = now
		c.axes[axis] = st
	}
	c.statusRefreshed = now
}

// markMoving optimistically flags an axis as moving after a command is
// issued, so callers polling immediately afterwards see motion before the
// next hardware status read lands.
func (c *stateCache) markMoving(axis string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.axes[axis]
	if !ok {
		return
	}
	st.Moving = true
	st.LastUpdated = time.Now()
	c.axes[axis] = st
}

// statusFresh reports whether the last authoritative status read is within
// the staleness window.
func (c *stateCache) statusFresh(window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.statusRefreshed.IsZero() && time.Since(c.statusRefreshed) < window
}

// reset seeds every axis back to the zero state. Called on connect so
// stale values from a previous session never leak.
func (c *stateCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for axis := range c.axes {
		c.axes[axis] = AxisState{LastUpdated: now}
	}
	c.statusRefreshed = time.Time{}
}
