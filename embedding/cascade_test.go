package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memvec/distance"
)

func embeddingServer(t *testing.T, dim int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Model)

		if hits != nil {
			hits.Add(1)
		}

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(i + len(req.Prompt))
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"embedding": vec}))
	}))
}

func TestHTTPEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("EmbedsAndNormalizes", func(t *testing.T) {
		srv := embeddingServer(t, 8, nil)
		defer srv.Close()

		e := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = srv.URL
			o.Dimension = 8
		})

		vecs, err := e.Embed(ctx, []string{"hello", "world"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		for _, v := range vecs {
			assert.Len(t, v, 8)
			assert.InDelta(t, 1.0, distance.Magnitude(v), 1e-4)
		}
	})

	t.Run("RejectsWrongDimension", func(t *testing.T) {
		srv := embeddingServer(t, 8, nil)
		defer srv.Close()

		e := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = srv.URL
			o.Dimension = 16 // server returns 8
		})

		_, err := e.Embed(ctx, []string{"hello"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimensions")
	})

	t.Run("Probe", func(t *testing.T) {
		srv := embeddingServer(t, 8, nil)
		defer srv.Close()

		e := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = srv.URL
			o.Dimension = 8
		})
		assert.NoError(t, e.Probe(ctx))
	})

	t.Run("TimeoutSurfaces", func(t *testing.T) {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer slow.Close()

		e := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = slow.URL
			o.Timeout = 20 * time.Millisecond
		})

		_, err := e.Embed(ctx, []string{"hello"})
		require.Error(t, err)
	})
}

func TestCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("PrefersPrimary", func(t *testing.T) {
		var hits atomic.Int32
		srv := embeddingServer(t, 8, &hits)
		defer srv.Close()

		remote := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = srv.URL
			o.Dimension = 8
		})

		c, err := NewCascade(NewHealthTracker(), remote, NewHash(8))
		require.NoError(t, err)

		vecs, err := c.Embed(ctx, []string{"hello"})
		require.NoError(t, err)
		require.Len(t, vecs, 1)
		assert.Greater(t, hits.Load(), int32(0), "remote backend must serve the request")
	})

	t.Run("FallsBackWhenUnreachable", func(t *testing.T) {
		remote := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = "http://127.0.0.1:1" // nothing listens here
			o.Dimension = 8
			o.Timeout = 50 * time.Millisecond
			o.ProbeTimeout = 50 * time.Millisecond
		})

		c, err := NewCascade(NewHealthTracker(), remote, NewHash(8))
		require.NoError(t, err)

		vecs, err := c.Embed(ctx, []string{"hello"})
		require.NoError(t, err)
		require.Len(t, vecs, 1)

		// The fallback is the deterministic hash embedder.
		want, err := NewHash(8).Embed(ctx, []string{"hello"})
		require.NoError(t, err)
		assert.Equal(t, want[0], vecs[0])
	})

	t.Run("FastFailAfterFirstProbe", func(t *testing.T) {
		remote := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = "http://127.0.0.1:1"
			o.Dimension = 8
			o.Timeout = 50 * time.Millisecond
			o.ProbeTimeout = 50 * time.Millisecond
		})

		c, err := NewCascade(NewHealthTracker(), remote, NewHash(8))
		require.NoError(t, err)

		_, err = c.Embed(ctx, []string{"warm up"})
		require.NoError(t, err)

		// Subsequent calls must skip the dead backend without paying its
		// timeout again.
		start := time.Now()
		_, err = c.Embed(ctx, []string{"fast"})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("FallbackHookFires", func(t *testing.T) {
		remote := NewHTTP(func(o *HTTPOptions) {
			o.BaseURL = "http://127.0.0.1:1"
			o.Dimension = 8
			o.Timeout = 50 * time.Millisecond
			o.ProbeTimeout = 50 * time.Millisecond
		})

		c, err := NewCascade(NewHealthTracker(), remote, NewHash(8))
		require.NoError(t, err)

		var fallbacks atomic.Int32
		c.OnFallback(func(from, to string, cause error) {
			fallbacks.Add(1)
			assert.Equal(t, remote.Model(), from)
			assert.Equal(t, "feature-hash", to)
		})

		_, err = c.Embed(ctx, []string{"hello"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), fallbacks.Load())
	})

	t.Run("DimensionMismatchRejected", func(t *testing.T) {
		_, err := NewCascade(NewHealthTracker(), NewHash(8), NewHash(16))
		require.Error(t, err)
	})

	t.Run("NoBackends", func(t *testing.T) {
		_, err := NewCascade(NewHealthTracker())
		require.Error(t, err)
	})
}
