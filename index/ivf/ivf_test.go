package ivf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memvec/testutil"
)

func buildTestIndex(t *testing.T, num, dim, k int) (*Index, [][]float32, []int64) {
	t.Helper()

	rng := testutil.NewRNG(42)
	vectors := rng.ClusteredVectors(num, dim, k, 0.05)
	ids := make([]int64, num)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	idx, err := Build(context.Background(), vectors, ids, func(o *BuildOptions) {
		o.K = k
		o.Iters = 3
		o.NProbe = 2
		o.Seed = 7
	})
	require.NoError(t, err)
	return idx, vectors, ids
}

func TestBuild(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		idx, _, _ := buildTestIndex(t, 200, 8, 8)
		assert.Equal(t, 8, idx.Dimension())
		assert.Equal(t, 8, idx.K())
		assert.Equal(t, 2, idx.NProbe())

		stats := idx.Stats()
		assert.Equal(t, uint64(200), stats.Count)
		assert.Zero(t, stats.SinceBuild)
		assert.Positive(t, stats.BuiltAt)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Build(context.Background(), nil, nil)
		assert.ErrorIs(t, err, ErrNoVectors)
	})

	t.Run("IDCountMismatch", func(t *testing.T) {
		_, err := Build(context.Background(), [][]float32{{1, 0}}, []int64{1, 2})
		require.Error(t, err)
	})

	t.Run("KClampedToRecordCount", func(t *testing.T) {
		rng := testutil.NewRNG(1)
		vectors := rng.UnitVectors(5, 4)
		idx, err := Build(context.Background(), vectors, []int64{1, 2, 3, 4, 5}, func(o *BuildOptions) {
			o.K = 64
			o.Seed = 1
		})
		require.NoError(t, err)
		assert.Equal(t, 5, idx.K())
	})

	t.Run("RaggedVectorRejected", func(t *testing.T) {
		_, err := Build(context.Background(), [][]float32{{1, 0}, {1, 0, 0}}, []int64{1, 2})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		rng := testutil.NewRNG(3)
		vectors := rng.UnitVectors(50, 4)
		ids := make([]int64, 50)
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		idx, err := Build(cancelled, vectors, ids, func(o *BuildOptions) {
			o.K = 4
			o.Seed = 3
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, idx)
	})
}

func TestSearchRecall(t *testing.T) {
	idx, vectors, ids := buildTestIndex(t, 500, 8, 10)

	rng := testutil.NewRNG(99)
	hits := 0
	const queries = 20
	for q := 0; q < queries; q++ {
		// Query near an existing record so ground truth is unambiguous.
		query := vectors[rng.Intn(len(vectors))]

		truth := testutil.BruteForceCosine(vectors, ids, query, 1)
		candidates, err := idx.Search(query, 0)
		require.NoError(t, err)

		if testutil.ComputeRecall(truth, candidates) == 1.0 {
			hits++
		}
	}

	// Approximate search: the true nearest neighbor must be in the probed
	// candidate set nearly always on well-clustered data.
	assert.GreaterOrEqual(t, hits, queries*8/10)
}

func TestSearchMoreProbesMoreCandidates(t *testing.T) {
	idx, vectors, _ := buildTestIndex(t, 300, 8, 10)

	few, err := idx.Search(vectors[0], 1)
	require.NoError(t, err)
	all, err := idx.Search(vectors[0], 10)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(few), len(all))
	assert.Len(t, all, 300, "probing every centroid covers every record")
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx, _, _ := buildTestIndex(t, 100, 8, 4)

	_, err := idx.Search(make([]float32, 16), 0)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 8, dm.Expected)
	assert.Equal(t, 16, dm.Actual)
}

func TestInsert(t *testing.T) {
	idx, _, _ := buildTestIndex(t, 100, 8, 4)

	rng := testutil.NewRNG(5)
	vec := rng.UnitVector(8)

	require.NoError(t, idx.Insert(1000, vec))

	// Immediately visible when every centroid is probed.
	candidates, err := idx.Search(vec, idx.K())
	require.NoError(t, err)
	assert.Contains(t, candidates, int64(1000))

	stats := idx.Stats()
	assert.Equal(t, uint64(101), stats.Count)
	assert.Equal(t, uint64(1), stats.SinceBuild)

	t.Run("WrongDimension", func(t *testing.T) {
		err := idx.Insert(1001, make([]float32, 3))
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})
}

func TestShouldRebuild(t *testing.T) {
	tests := []struct {
		name       string
		hasIndex   bool
		count      int
		sinceBuild uint64
		expected   bool
	}{
		{"NoIndexBelowViable", false, 100, 0, false},
		{"NoIndexAtViable", false, 512, 0, true},
		{"NoIndexAboveViable", false, 1000, 0, true},
		{"IndexFresh", true, 1000, 0, false},
		{"IndexAtThreshold", true, 1000, 512, false},
		{"IndexPastThreshold", true, 1000, 513, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldRebuild(tt.hasIndex, tt.count, tt.sinceBuild, 512, 512)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	idx, vectors, _ := buildTestIndex(t, 200, 8, 6)
	require.NoError(t, idx.Insert(999, vectors[0]))

	blob, err := idx.MarshalBinary()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	loaded, err := UnmarshalBinary(blob)
	require.NoError(t, err)

	assert.Equal(t, idx.Dimension(), loaded.Dimension())
	assert.Equal(t, idx.K(), loaded.K())
	assert.Equal(t, idx.NProbe(), loaded.NProbe())
	assert.Equal(t, idx.Stats().Count, loaded.Stats().Count)
	assert.Equal(t, idx.Stats().SinceBuild, loaded.Stats().SinceBuild)

	// Identical candidate sets for identical probes.
	for _, query := range vectors[:10] {
		want, err := idx.Search(query, 3)
		require.NoError(t, err)
		got, err := loaded.Search(query, 3)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	t.Run("NotZstd", func(t *testing.T) {
		_, err := UnmarshalBinary([]byte("not an index"))
		var ib *ErrInvalidBlob
		assert.ErrorAs(t, err, &ib)
	})

	t.Run("Truncated", func(t *testing.T) {
		idx, _, _ := buildTestIndex(t, 50, 4, 2)
		blob, err := idx.MarshalBinary()
		require.NoError(t, err)

		_, err = UnmarshalBinary(blob[:8])
		var ib *ErrInvalidBlob
		assert.ErrorAs(t, err, &ib)
	})
}

func TestBlobKey(t *testing.T) {
	key := BlobKey("agent-1", 768, 64)
	assert.Equal(t, "agent-1/ivf/dim768-k64.idx", key)

	dim, k, ok := ParseBlobKey(key)
	require.True(t, ok)
	assert.Equal(t, 768, dim)
	assert.Equal(t, 64, k)

	_, _, ok = ParseBlobKey("agent-1/ivf/whatever.bin")
	assert.False(t, ok)
}
