// Package kmeans implements k-means clustering for IVF centroid training.
//
// Used internally by the IVF index to learn partition centroids from the
// current record set. Initialization is kmeans++ with a caller-provided seed
// so builds are reproducible in tests.
package kmeans
