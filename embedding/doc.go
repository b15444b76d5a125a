// Package embedding turns text into fixed-length float32 vectors.
//
// The package is built around the Embedder interface with three
// implementations:
//
//   - HTTPEmbedder: a local inference server's embedding endpoint
//     (Ollama-style POST /api/embeddings), bounded by a short timeout.
//   - HashEmbedder: a deterministic feature-hashing projection that never
//     fails and produces bit-identical vectors for identical text.
//   - Cascade: ordered backends with liveness probing, so an unreachable
//     network backend is tried once and then skipped for a cooldown window
//     instead of stalling every call on its timeout.
//
// Vectors from different backends are not comparable: a collection should be
// embedded with one backend consistently. All embedders L2-normalize their
// output so cosine similarity reduces to a dot product.
package embedding
