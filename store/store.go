package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDimensionMismatch indicates a vector whose length disagrees with the
// collection's configured dimensionality. Vectors are never truncated or
// padded to fit.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Metadata is an opaque pass-through map attached to a record. The store
// never interprets its keys; it is round-tripped as JSON.
type Metadata map[string]any

// Record is one stored memory.
type Record struct {
	ID          int64
	Owner       string
	Timestamp   float64 // seconds since epoch
	Text        string
	Metadata    Metadata
	Vector      []float32
	Fingerprint string
	Freq        int
}

// Store is the durable record store interface.
type Store interface {
	// Add persists one record and returns its id. If a record with the
	// same fingerprint already exists for the owner, its timestamp and
	// frequency are bumped instead and deduped is true.
	Add(ctx context.Context, rec *Record) (id int64, deduped bool, err error)

	// AddBatch persists records in one transaction, preserving input order
	// in the returned ids.
	AddBatch(ctx context.Context, recs []*Record) (ids []int64, deduped []bool, err error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// GetMany returns the owner's records with the given ids.
	// Missing ids are skipped, not an error.
	GetMany(ctx context.Context, owner string, ids []int64) ([]*Record, error)

	// Scan returns up to limit records for the owner, oldest first.
	// limit <= 0 returns all records.
	Scan(ctx context.Context, owner string, limit int) ([]*Record, error)

	// ScanRecent returns the most recent limit records for the owner,
	// bounding worst-case latency when no index exists.
	ScanRecent(ctx context.Context, owner string, limit int) ([]*Record, error)

	// Count returns the number of records for the owner.
	Count(ctx context.Context, owner string) (int, error)

	// Owners returns all owners with at least one record.
	Owners(ctx context.Context) ([]string, error)

	// Close releases the underlying database.
	Close() error
}

// Fingerprint returns the dedup key for a text: SHA-1 of the
// whitespace-collapsed, lowercased content.
func Fingerprint(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
	sum := sha1.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])
}
