package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/memvec/distance"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultHTTPOptions are the defaults for NewHTTP.
var DefaultHTTPOptions = HTTPOptions{
	BaseURL:      "http://127.0.0.1:11434",
	Model:        "nomic-embed-text",
	Dimension:    768,
	Timeout:      6 * time.Second,
	ProbeTimeout: 2 * time.Second,
	Concurrency:  4,
}

// HTTPOptions configures an HTTPEmbedder.
type HTTPOptions struct {
	// BaseURL is the inference server base URL (Ollama-compatible).
	BaseURL string

	// Model is the embedding model name sent with each request.
	Model string

	// Dimension is the expected vector length. Responses of any other
	// length are rejected, never truncated or padded.
	Dimension int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration

	// Concurrency is the number of parallel requests for batch embedding.
	Concurrency int

	// HTTPClient overrides the default client. Timeouts are applied
	// per-request via context, not on the client.
	HTTPClient *http.Client

	// Limiter throttles requests to the backend. Nil disables limiting.
	Limiter *rate.Limiter
}

// HTTPEmbedder embeds text via an Ollama-style /api/embeddings endpoint.
//
// Output vectors are L2-normalized.
type HTTPEmbedder struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTP creates a new HTTPEmbedder.
func NewHTTP(optFns ...func(o *HTTPOptions)) *HTTPEmbedder {
	opts := DefaultHTTPOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &HTTPEmbedder{opts: opts, client: client}
}

// Dimension returns the configured vector length.
func (e *HTTPEmbedder) Dimension() int { return e.opts.Dimension }

// Model returns the configured model name.
func (e *HTTPEmbedder) Model() string { return e.opts.Model }

// Probe checks that the embedding endpoint answers a tiny request within the
// probe timeout.
func (e *HTTPEmbedder) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
	defer cancel()
	_, err := e.embedOne(ctx, "ping")
	return err
}

// Embed creates embeddings for the given texts, in input order. Batch
// requests run concurrently up to the configured concurrency.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := e.embedText(ctx, text)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *HTTPEmbedder) embedText(ctx context.Context, text string) ([]float32, error) {
	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	v, err := e.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}

	if len(v) != e.opts.Dimension {
		return nil, fmt.Errorf("embedding: model %q returned %d dimensions, want %d", e.opts.Model, len(v), e.opts.Dimension)
	}

	distance.NormalizeL2InPlace(v)
	return v, nil
}

func (e *HTTPEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{
		"model":  e.opts.Model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding: backend returned HTTP %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if parsed.Embedding == nil {
		return nil, fmt.Errorf("embedding: response missing embedding field")
	}
	return parsed.Embedding, nil
}
