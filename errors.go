package memvec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/memvec/embedding"
	"github.com/hupe1980/memvec/index/ivf"
	"github.com/hupe1980/memvec/store"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTopK is returned when topk is not positive.
	ErrInvalidTopK = errors.New("topk must be positive")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("engine is closed")

	// ErrEmbeddingUnavailable is returned when no embedding backend could
	// produce a vector, including the deterministic fallback.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
// Vectors are never truncated or padded to fit.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrStoreWrite indicates a failed record write. The operation is NOT
// durable; the caller may retry.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrStoreWrite struct {
	Owner string
	cause error
}

func (e *ErrStoreWrite) Error() string {
	return fmt.Sprintf("store write failed for %q: %v", e.Owner, e.cause)
}

func (e *ErrStoreWrite) Unwrap() error { return e.cause }

// ErrIndexBuild indicates a failed index build. Non-fatal: the previous
// index, or the scan fallback, remains authoritative.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIndexBuild struct {
	Owner string
	cause error
}

func (e *ErrIndexBuild) Error() string {
	return fmt.Sprintf("index build failed for %q: %v", e.Owner, e.cause)
}

func (e *ErrIndexBuild) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension normalization across layers.
	var sdm *store.ErrDimensionMismatch
	if errors.As(err, &sdm) {
		return &ErrDimensionMismatch{Expected: sdm.Expected, Actual: sdm.Actual, cause: err}
	}
	var idm *ivf.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return &ErrDimensionMismatch{Expected: idm.Expected, Actual: idm.Actual, cause: err}
	}

	if errors.Is(err, embedding.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	return err
}
