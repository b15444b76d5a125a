package ivf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/memvec/distance"
	"github.com/hupe1980/memvec/internal/kmeans"
)

var (
	// ErrNoVectors is returned when building over an empty record set.
	ErrNoVectors = errors.New("ivf: no vectors to index")
)

// ErrDimensionMismatch indicates a vector whose length disagrees with the
// index dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("ivf: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// DefaultBuildOptions are the defaults for Build.
var DefaultBuildOptions = BuildOptions{
	K:      64,
	Iters:  3,
	NProbe: 4,
}

// BuildOptions configures an index build.
type BuildOptions struct {
	// K is the number of centroids. Clamped to the record count when the
	// collection is smaller than K.
	K int

	// Iters is the k-means iteration budget.
	Iters int

	// NProbe is the default number of centroids probed per search.
	NProbe int

	// Seed seeds centroid initialization. Zero picks a time-based seed;
	// set it explicitly for reproducible builds.
	Seed int64
}

// Index is an inverted-file index over one owner's vectors.
//
// Safe for concurrent use: searches take a read lock, incremental inserts a
// write lock. A Build produces a brand-new Index; swapping it in atomically
// is the caller's responsibility.
type Index struct {
	mu         sync.RWMutex
	dim        int
	k          int
	nprobe     int
	centroids  []float32 // flattened k*dim
	postings   map[uint32]*roaring64.Bitmap
	count      uint64
	sinceBuild uint64
	builtAt    float64 // unix seconds
}

// Build clusters the given vectors into an inverted-file index. ids[i] is the
// record id of vectors[i]. Vectors are assumed L2-normalized (cosine space).
//
// Cancelling ctx aborts the build between k-means iterations; no partial
// index is returned.
func Build(ctx context.Context, vectors [][]float32, ids []int64, optFns ...func(o *BuildOptions)) (*Index, error) {
	opts := DefaultBuildOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	n := len(vectors)
	if n == 0 {
		return nil, ErrNoVectors
	}
	if len(ids) != n {
		return nil, fmt.Errorf("ivf: %d vectors but %d ids", n, len(ids))
	}

	dim := len(vectors[0])
	flat := make([]float32, 0, n*dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
		flat = append(flat, v...)
	}

	k := opts.K
	if k < 1 {
		k = DefaultBuildOptions.K
	}
	if k > n {
		k = n
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	centroids, err := kmeans.Train(ctx, flat, dim, k, distance.MetricCosine, opts.Iters, seed)
	if err != nil {
		return nil, fmt.Errorf("ivf: train centroids: %w", err)
	}
	if centroids == nil {
		return nil, ErrNoVectors
	}

	postings := make(map[uint32]*roaring64.Bitmap, k)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		j, err := kmeans.Assign(flat[i*dim:(i+1)*dim], centroids, dim, distance.MetricCosine)
		if err != nil {
			return nil, err
		}
		bm, ok := postings[uint32(j)]
		if !ok {
			bm = roaring64.New()
			postings[uint32(j)] = bm
		}
		bm.Add(uint64(ids[i]))
	}

	nprobe := opts.NProbe
	if nprobe < 1 {
		nprobe = DefaultBuildOptions.NProbe
	}

	return &Index{
		dim:       dim,
		k:         k,
		nprobe:    nprobe,
		centroids: centroids,
		postings:  postings,
		count:     uint64(n),
		builtAt:   float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

// Dimension returns the index dimensionality.
func (idx *Index) Dimension() int { return idx.dim }

// K returns the number of centroids.
func (idx *Index) K() int { return idx.k }

// NProbe returns the default probe count.
func (idx *Index) NProbe() int { return idx.nprobe }

// Search returns the union of the postings of the nprobe centroids nearest
// the query. nprobe <= 0 uses the index default. The order of the returned
// ids is unspecified.
func (idx *Index) Search(query []float32, nprobe int) ([]int64, error) {
	if len(query) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}
	if nprobe <= 0 {
		nprobe = idx.nprobe
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	probes, err := kmeans.Nearest(query, idx.centroids, idx.dim, nprobe, distance.MetricCosine)
	if err != nil {
		return nil, err
	}

	union := roaring64.New()
	for _, j := range probes {
		if bm, ok := idx.postings[uint32(j)]; ok {
			union.Or(bm)
		}
	}

	raw := union.ToArray()
	ids := make([]int64, len(raw))
	for i, id := range raw {
		ids[i] = int64(id)
	}
	return ids, nil
}

// Insert assigns the vector to its nearest existing centroid and appends the
// record id to that centroid's postings. Centroids are not recomputed; the
// approximation drifts until the next Build.
func (idx *Index) Insert(id int64, vec []float32) error {
	if len(vec) != idx.dim {
		return &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vec)}
	}

	j, err := kmeans.Assign(vec, idx.centroids, idx.dim, distance.MetricCosine)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	bm, ok := idx.postings[uint32(j)]
	if !ok {
		bm = roaring64.New()
		idx.postings[uint32(j)] = bm
	}
	bm.Add(uint64(id))
	idx.count++
	idx.sinceBuild++
	return nil
}

// Stats is a snapshot of index state.
type Stats struct {
	Dim        int
	K          int
	NProbe     int
	Count      uint64
	SinceBuild uint64
	BuiltAt    float64
}

// Stats returns a snapshot of index state.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		Dim:        idx.dim,
		K:          idx.k,
		NProbe:     idx.nprobe,
		Count:      idx.count,
		SinceBuild: idx.sinceBuild,
		BuiltAt:    idx.builtAt,
	}
}

// SinceBuild returns the number of incremental inserts since the last build.
func (idx *Index) SinceBuild() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.sinceBuild
}

// ShouldRebuild is the rebuild policy: rebuild when no index exists for a
// collection that has reached minViable records, or when incremental inserts
// since the last build exceed threshold.
//
// It is a pure function so the policy is testable in isolation.
func ShouldRebuild(hasIndex bool, count int, sinceBuild uint64, threshold, minViable int) bool {
	if !hasIndex {
		return count >= minViable
	}
	return sinceBuild > uint64(threshold)
}
