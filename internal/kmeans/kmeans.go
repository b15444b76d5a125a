package kmeans

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/memvec/distance"
)

// Train learns k centroids from the given vectors using kmeans++ seeding and
// Lloyd iterations. vectors is a flattened (n * dim) slice. It returns the
// flattened centroids (k * dim).
//
// The iteration count is a fixed compute budget; convergence is not checked.
// Empty clusters keep their previous centroid instead of being re-seeded, so
// a degenerate assignment cannot produce centroids outside the data range.
//
// Cancelling ctx aborts training between iterations and returns ctx's error.
//
// Returns nil if there are fewer vectors than k.
func Train(ctx context.Context, vectors []float32, dim, k int, metric distance.Metric, iters int, seed int64) ([]float32, error) {
	if dim <= 0 {
		return nil, nil
	}
	n := len(vectors) / dim
	if n < k {
		return nil, nil
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initPlusPlus(vectors, dim, k, rng)

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	if iters < 1 {
		iters = 1
	}

	for iter := 0; iter < iters; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := nearest(vec, centroids, dim, k, distFunc)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		// Update step
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				// Keep the prior centroid for empty clusters.
				continue
			}
			scale := 1.0 / float32(counts[j])
			center := centroids[j*dim : (j+1)*dim]
			for d := 0; d < dim; d++ {
				center[d] = sums[j*dim+d] * scale
			}
			if metric == distance.MetricCosine {
				distance.NormalizeL2InPlace(center)
			}
		}
	}

	return centroids, nil
}

// initPlusPlus picks k starting centroids with kmeans++ weighting:
// the first uniformly at random, the rest proportional to squared distance
// from the nearest already-chosen centroid.
func initPlusPlus(vectors []float32, dim, k int, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	centroids := make([]float32, 0, k*dim)

	first := rng.Intn(n)
	centroids = append(centroids, vectors[first*dim:(first+1)*dim]...)

	d2 := make([]float64, n)
	for len(centroids)/dim < k {
		var total float64
		kk := len(centroids) / dim
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			minDist := math.MaxFloat64
			for j := 0; j < kk; j++ {
				d := float64(distance.SquaredL2(vec, centroids[j*dim:(j+1)*dim]))
				if d < minDist {
					minDist = d
				}
			}
			d2[i] = minDist
			total += minDist
		}
		if total == 0 {
			total = 1
		}
		r := rng.Float64() * total
		var acc float64
		idx := 0
		for i, dv := range d2 {
			acc += dv
			if acc >= r {
				idx = i
				break
			}
		}
		centroids = append(centroids, vectors[idx*dim:(idx+1)*dim]...)
	}

	return centroids
}

func nearest(vec, centroids []float32, dim, k int, distFunc distance.Func) int {
	best := -1
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// Assign finds the closest centroid for a vector.
func Assign(vec, centroids []float32, dim int, metric distance.Metric) (int, error) {
	k := len(centroids) / dim
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	return nearest(vec, centroids, dim, k, distFunc), nil
}

type centroidDist struct {
	id   int
	dist float32
}

// Nearest returns the indices of the n closest centroids to the query vector.
func Nearest(query, centroids []float32, dim, n int, metric distance.Metric) ([]int, error) {
	k := len(centroids) / dim
	if n > k {
		n = k
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: distFunc(query, centroids[i*dim:(i+1)*dim])}
	}

	sort.Slice(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}

	return result, nil
}
