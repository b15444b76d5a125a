// Package testutil provides deterministic vector generators and ground-truth
// helpers for tests and benchmarks.
package testutil
