// Package ivf implements an inverted-file (IVF) approximate nearest-neighbor
// index.
//
// The vector space is partitioned into K centroids learned by k-means; each
// record id lives in the postings list (a roaring bitmap) of its nearest
// centroid. A search probes only the nprobe centroids nearest the query and
// returns the union of their postings as a candidate set, in unspecified
// order - re-ranking is the caller's job.
//
// Two mutation paths exist by design:
//
//   - Insert is the cheap approximate path: the vector is appended to the
//     nearest existing centroid's postings without recomputing centroids.
//     Centroid quality degrades as records accumulate.
//   - Build is the expensive authoritative path: a full k-means recompute
//     over the owner's records, replacing the index wholesale.
//
// ShouldRebuild is the pure policy function deciding when drift has gone far
// enough to warrant a Build.
//
// The index holds only record ids, never record data; it is derived state,
// safe to discard and rebuild from the record store at any time.
package ivf
