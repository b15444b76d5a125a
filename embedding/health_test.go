package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTrackerProbeOnce(t *testing.T) {
	ctx := context.Background()
	h := NewHealthTracker()

	var probes atomic.Int32
	probe := func(context.Context) error {
		probes.Add(1)
		return nil
	}

	assert.True(t, h.Healthy(ctx, "backend", probe))
	assert.True(t, h.Healthy(ctx, "backend", probe))
	assert.True(t, h.Healthy(ctx, "backend", probe))

	assert.Equal(t, int32(1), probes.Load(), "a healthy backend is probed once")
}

func TestHealthTrackerFailedProbeFastFails(t *testing.T) {
	ctx := context.Background()
	h := NewHealthTracker()

	var probes atomic.Int32
	probe := func(context.Context) error {
		probes.Add(1)
		return errors.New("connection refused")
	}

	assert.False(t, h.Healthy(ctx, "backend", probe))

	// With zero cooldown the backend stays down for the process lifetime;
	// no further probes, no further timeouts paid.
	assert.False(t, h.Healthy(ctx, "backend", probe))
	assert.False(t, h.Healthy(ctx, "backend", probe))
	assert.Equal(t, int32(1), probes.Load())
}

func TestHealthTrackerCooldownReprobe(t *testing.T) {
	ctx := context.Background()
	h := NewHealthTracker(func(o *HealthTrackerOptions) {
		o.Cooldown = time.Minute
	})

	clock := time.Unix(1000, 0)
	h.now = func() time.Time { return clock }

	calls := 0
	probe := func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("down")
		}
		return nil
	}

	assert.False(t, h.Healthy(ctx, "backend", probe))
	assert.False(t, h.Healthy(ctx, "backend", probe), "still inside cooldown")
	require.Equal(t, 1, calls)

	clock = clock.Add(2 * time.Minute)
	assert.True(t, h.Healthy(ctx, "backend", probe), "cooldown elapsed, probe again")
	assert.Equal(t, 2, calls)
}

func TestHealthTrackerMarkUnreachable(t *testing.T) {
	ctx := context.Background()
	h := NewHealthTracker()

	require.True(t, h.Healthy(ctx, "backend", nil))
	h.MarkUnreachable("backend")
	assert.False(t, h.Healthy(ctx, "backend", nil))

	h.Reset()
	assert.True(t, h.Healthy(ctx, "backend", nil))
}

func TestHealthTrackerConcurrentProbeDedup(t *testing.T) {
	ctx := context.Background()
	h := NewHealthTracker()

	var probes atomic.Int32
	probe := func(context.Context) error {
		probes.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, h.Healthy(ctx, "backend", probe))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), probes.Load(), "concurrent first calls share one probe")
}
