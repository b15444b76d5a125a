// Package rank implements the hybrid scorer: cosine similarity blended with
// an optional lexical overlap term, exponential time decay, and a sigmoid
// freshness boost, producing a ranked, truncated, threshold-filtered hit
// list.
//
// The score is a relative ranking signal, not a probability; with decay or
// lexical blending enabled it can leave the [-1, 1] cosine range.
package rank
