package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Cascade tries a list of backends in order and returns the first success.
//
// Backends implementing Prober are probed through the shared HealthTracker
// before their first use; an unreachable backend is skipped outright instead
// of paying its timeout on every call. A backend that fails mid-call is
// marked unreachable and the next one is tried.
//
// With a HashEmbedder as the final backend, Embed effectively cannot fail.
type Cascade struct {
	backends   []Embedder
	health     *HealthTracker
	onFallback func(from, to string, cause error)
}

// NewCascade creates a Cascade over the given backends, first preferred.
// health must not be nil. All backends must share one dimensionality.
func NewCascade(health *HealthTracker, backends ...Embedder) (*Cascade, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("embedding: cascade needs at least one backend")
	}
	dim := backends[0].Dimension()
	for _, b := range backends[1:] {
		if b.Dimension() != dim {
			return nil, fmt.Errorf("embedding: cascade dimension mismatch: %q has %d, %q has %d",
				backends[0].Model(), dim, b.Model(), b.Dimension())
		}
	}
	return &Cascade{backends: backends, health: health}, nil
}

// OnFallback registers a hook invoked when the preferred backend is skipped
// or fails and a later backend serves the call. cause is the preferred
// backend's error, or nil when it was skipped as unreachable.
func (c *Cascade) OnFallback(fn func(from, to string, cause error)) {
	c.onFallback = fn
}

// Dimension returns the shared vector length of all backends.
func (c *Cascade) Dimension() int { return c.backends[0].Dimension() }

// Model returns a composite identifier naming each backend in order.
func (c *Cascade) Model() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Model()
	}
	return "cascade(" + strings.Join(names, ",") + ")"
}

// Embed tries each backend in order. It returns ErrUnavailable (wrapping the
// last failure) only if every backend fails.
func (c *Cascade) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for i, b := range c.backends {
		if p, ok := b.(Prober); ok {
			if !c.health.Healthy(ctx, b.Model(), p.Probe) {
				continue
			}
		}

		vecs, err := b.Embed(ctx, texts)
		if err == nil {
			if i > 0 && c.onFallback != nil {
				c.onFallback(c.backends[0].Model(), b.Model(), lastErr)
			}
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		c.health.MarkUnreachable(b.Model())
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
	}
	return nil, ErrUnavailable
}
