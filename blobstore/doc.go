// Package blobstore provides keyed storage for memvec's derived index blobs.
//
// A Store holds immutable, whole-blob values keyed by name. The engine uses
// it to persist per-owner IVF indexes; blobs are derived state and can always
// be regenerated from the record store. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic tmp+rename writes
//   - MemoryStore: in-memory, for tests
//   - minio.Store: MinIO and other S3-compatible storage
//   - s3.Store: Amazon S3
package blobstore
