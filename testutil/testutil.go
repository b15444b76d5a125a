package testutil

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"github.com/hupe1980/memvec/distance"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dim int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitVectorLocked(dim)
}

func (r *RNG) unitVectorLocked(dim int) []float32 {
	vec := make([]float32, dim)
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}
	invNorm := float32(1.0 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= invNorm
	}
	return vec
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Uses Gaussian sampling for uniform distribution on the sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = r.unitVectorLocked(dim)
	}
	return vectors
}

// ClusteredVectors generates L2-normalized vectors clustered around random
// centroids. Useful for testing IVF recall on realistically non-uniform
// data; lower spread means tighter clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := make([][]float32, num)
	for i := range vectors {
		centroid := centroids[i%clusters]
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		distance.NormalizeL2InPlace(vec)
		vectors[i] = vec
	}
	return vectors
}

// Sentences generates deterministic distinct texts for ingestion tests.
func Sentences(num int) []string {
	subjects := []string{"the agent", "the crawler", "the deploy script", "the scheduler", "the planner"}
	verbs := []string{"stores", "retrieves", "ranks", "indexes", "embeds"}
	objects := []string{"release notes", "meeting summaries", "error traces", "config changes", "chat history"}

	texts := make([]string, num)
	for i := range texts {
		s := subjects[i%len(subjects)]
		v := verbs[(i/len(subjects))%len(verbs)]
		o := objects[(i/(len(subjects)*len(verbs)))%len(objects)]
		texts[i] = s + " " + v + " " + o + " #" + strconv.Itoa(i)
	}
	return texts
}

// Neighbor is one ground-truth search result.
type Neighbor struct {
	ID     int64
	Cosine float32
}

// BruteForceCosine computes exact top-k neighbors by cosine similarity.
// Vectors and query are assumed L2-normalized; ids[i] labels vectors[i].
func BruteForceCosine(vectors [][]float32, ids []int64, query []float32, k int) []Neighbor {
	results := make([]Neighbor, len(vectors))
	for i, v := range vectors {
		results[i] = Neighbor{ID: ids[i], Cosine: distance.Dot(query, v)}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Cosine > results[j].Cosine
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ComputeRecall computes recall@k of a candidate id set against ground truth.
func ComputeRecall(groundTruth []Neighbor, candidates []int64) float64 {
	if len(groundTruth) == 0 {
		return 1.0
	}

	candidateSet := make(map[int64]struct{}, len(candidates))
	for _, id := range candidates {
		candidateSet[id] = struct{}{}
	}

	hits := 0
	for _, n := range groundTruth {
		if _, ok := candidateSet[n.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(groundTruth))
}
