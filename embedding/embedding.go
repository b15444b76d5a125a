package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when every configured backend failed for a call.
var ErrUnavailable = errors.New("embedding: no backend available")

// Embedder generates vector embeddings for text.
//
// Implementations must return one vector per input text, in input order, and
// every vector must have exactly Dimension() elements.
type Embedder interface {
	// Embed creates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of vectors produced by this embedder.
	Dimension() int

	// Model returns the model identifier, for logging and backend tagging.
	Model() string
}

// Prober is implemented by embedders that support a cheap liveness check.
type Prober interface {
	// Probe verifies the backend is reachable. It should be fast and
	// side-effect free.
	Probe(ctx context.Context) error
}
