package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/hupe1980/memvec/distance"
)

// maxHashTokens caps the number of tokens folded into a hashed vector.
const maxHashTokens = 512

// HashEmbedder produces deterministic embeddings by feature hashing: each
// token is hashed and scattered into a handful of signed buckets, then the
// vector is L2-normalized.
//
// It is a pure function of the text bytes - the same text yields bit-identical
// vectors on every call, on every machine. Quality is far below a learned
// model, but it is offline, instant, and never fails, which makes it the
// fallback of last resort.
type HashEmbedder struct {
	dim int
}

// NewHash creates a HashEmbedder with the given dimensionality.
func NewHash(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Dimension returns the configured vector length.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Model returns the identifier for hashed embeddings.
func (e *HashEmbedder) Model() string { return "feature-hash" }

// Embed creates embeddings for the given texts. It never returns an error.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	v := make([]float32, e.dim)

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > maxHashTokens {
		tokens = tokens[:maxHashTokens]
	}

	for _, tok := range tokens {
		d := sha256.Sum256([]byte(tok))
		// Four (index, sign) pairs per token from the digest head.
		for k := 0; k < 16; k += 4 {
			idx := int(binary.BigEndian.Uint16(d[k:k+2])) % e.dim
			if d[k+2]&1 == 1 {
				v[idx]++
			} else {
				v[idx]--
			}
		}
	}

	// Zero vector (no tokens) stays zero; cosine against it scores 0.
	distance.NormalizeL2InPlace(v)
	return v
}
