package embedding

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// HealthTracker records backend reachability so an unreachable backend is
// probed once instead of stalling every call on its timeout.
//
// It is an explicit, injectable object: construct one per process and pass
// it to NewCascade. A zero cooldown marks a failed backend unreachable for
// the remainder of the process; a positive cooldown allows re-probing after
// the window elapses. Safe for concurrent use.
type HealthTracker struct {
	mu       sync.Mutex
	group    singleflight.Group
	down     map[string]time.Time // backend -> unreachable until
	probed   map[string]bool
	cooldown time.Duration
	now      func() time.Time
}

// HealthTrackerOptions configures a HealthTracker.
type HealthTrackerOptions struct {
	// Cooldown is how long a failed backend stays unreachable before it is
	// probed again. Zero means the remainder of the process.
	Cooldown time.Duration
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker(optFns ...func(o *HealthTrackerOptions)) *HealthTracker {
	opts := HealthTrackerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HealthTracker{
		down:     make(map[string]time.Time),
		probed:   make(map[string]bool),
		cooldown: opts.Cooldown,
		now:      time.Now,
	}
}

// Healthy reports whether the named backend should be called. If the backend
// has not been probed yet (or its cooldown expired), probe is invoked exactly
// once across concurrent callers.
func (h *HealthTracker) Healthy(ctx context.Context, name string, probe func(ctx context.Context) error) bool {
	h.mu.Lock()
	until, isDown := h.down[name]
	probed := h.probed[name]
	now := h.now()
	h.mu.Unlock()

	if isDown {
		if until.IsZero() || now.Before(until) {
			return false
		}
		// Cooldown elapsed, probe again.
	} else if probed {
		return true
	}

	if probe == nil {
		h.markUp(name)
		return true
	}

	_, err, _ := h.group.Do(name, func() (any, error) {
		return nil, probe(ctx)
	})
	if err != nil {
		h.MarkUnreachable(name)
		return false
	}
	h.markUp(name)
	return true
}

// MarkUnreachable records a backend failure, routing subsequent calls away
// from it until the cooldown elapses.
func (h *HealthTracker) MarkUnreachable(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var until time.Time
	if h.cooldown > 0 {
		until = h.now().Add(h.cooldown)
	}
	h.down[name] = until
	h.probed[name] = true
}

func (h *HealthTracker) markUp(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.down, name)
	h.probed[name] = true
}

// Reset clears all recorded state. Intended for tests.
func (h *HealthTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = make(map[string]time.Time)
	h.probed = make(map[string]bool)
}
