// Package distance provides vector distance and similarity calculations.
//
// # Supported Metrics
//
//   - MetricCosine: Cosine similarity (dot product on normalized vectors)
//   - MetricL2: Squared Euclidean distance
//   - MetricDot: Dot product (inner product)
//
// # Usage
//
//	sim := distance.Dot(a, b)
//	dist := distance.SquaredL2(a, b)
//	normalized, ok := distance.NormalizeL2Copy(vec)
package distance
