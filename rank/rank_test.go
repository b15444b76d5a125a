package rank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memvec/store"
)

func fixedNow() time.Time {
	return time.Unix(1_000_000, 0)
}

func candidate(id int64, text string, ts float64, vec []float32) *store.Record {
	return &store.Record{ID: id, Timestamp: ts, Text: text, Vector: vec}
}

func keepAll() Config {
	return Config{MinScore: math.Inf(-1), Now: fixedNow}
}

func TestRankCosineOrdering(t *testing.T) {
	// dim=4 scenario: alpha on the first axis, beta on the second, query
	// leaning heavily toward alpha.
	alpha := candidate(1, "alpha", 0, []float32{1, 0, 0, 0})
	beta := candidate(2, "beta", 100, []float32{0, 1, 0, 0})

	query := []float32{0.9, 0.1, 0, 0}
	norm := float32(math.Sqrt(0.9*0.9 + 0.1*0.1))
	query[0] /= norm
	query[1] /= norm

	cfg := keepAll()
	cfg.TopK = 10

	hits := Rank(query, "query", []*store.Record{beta, alpha}, cfg)
	require.Len(t, hits, 2)

	assert.Equal(t, int64(1), hits[0].Record.ID)
	assert.InDelta(t, 0.994, hits[0].Score, 1e-3)
	assert.Equal(t, int64(2), hits[1].Record.ID)
	assert.InDelta(t, 0.111, hits[1].Score, 1e-3)
}

func TestRankEmptyCandidates(t *testing.T) {
	cfg := keepAll()
	cfg.TopK = 5
	assert.Empty(t, Rank([]float32{1, 0}, "q", nil, cfg))
}

func TestRankTopKTruncation(t *testing.T) {
	var candidates []*store.Record
	for i := int64(0); i < 10; i++ {
		candidates = append(candidates, candidate(i, "doc", float64(i), []float32{1, 0}))
	}

	cfg := keepAll()
	cfg.TopK = 3

	hits := Rank([]float32{1, 0}, "q", candidates, cfg)
	assert.Len(t, hits, 3)
}

func TestRankMinScoreAboveMaxReturnsEmpty(t *testing.T) {
	candidates := []*store.Record{
		candidate(1, "doc", 0, []float32{1, 0}),
	}

	cfg := Config{TopK: 5, MinScore: 1.1, Now: fixedNow}
	hits := Rank([]float32{1, 0}, "q", candidates, cfg)
	assert.Empty(t, hits, "min_score above max cosine filters everything, no error")
}

func TestRankFreshnessMonotonicity(t *testing.T) {
	now := fixedNow()
	nowSec := float64(now.Unix())

	// Identical vectors and text, different ages.
	older := candidate(1, "same text", nowSec-10*86400, []float32{1, 0})
	newer := candidate(2, "same text", nowSec-1*86400, []float32{1, 0})

	cfg := keepAll()
	cfg.TopK = 2
	cfg.DecayLambda = 0.05

	hits := Rank([]float32{1, 0}, "same text", []*store.Record{older, newer}, cfg)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].Record.ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestRankDecayDisabledByDefault(t *testing.T) {
	now := fixedNow()
	nowSec := float64(now.Unix())

	older := candidate(1, "a", nowSec-1000*86400, []float32{1, 0})
	newer := candidate(2, "a", nowSec, []float32{1, 0})

	cfg := keepAll()
	cfg.TopK = 2

	hits := Rank([]float32{1, 0}, "a", []*store.Record{older, newer}, cfg)
	require.Len(t, hits, 2)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9, "lambda=0 means no aging")
}

func TestRankTieBreakByTimestamp(t *testing.T) {
	a := candidate(1, "a", 100, []float32{1, 0})
	b := candidate(2, "b", 300, []float32{1, 0})
	c := candidate(3, "c", 200, []float32{1, 0})

	cfg := keepAll()
	cfg.TopK = 3

	hits := Rank([]float32{1, 0}, "q", []*store.Record{a, b, c}, cfg)
	require.Len(t, hits, 3)
	assert.Equal(t, int64(2), hits[0].Record.ID, "equal scores order most recent first")
	assert.Equal(t, int64(3), hits[1].Record.ID)
	assert.Equal(t, int64(1), hits[2].Record.ID)
}

func TestRankHybridLexicalBlend(t *testing.T) {
	// Both candidates identical in vector space; only lexical overlap
	// distinguishes them.
	match := candidate(1, "deploy runbook for ops", 0, []float32{1, 0})
	other := candidate(2, "unrelated party planning", 0, []float32{1, 0})

	cfg := keepAll()
	cfg.TopK = 2
	cfg.HybridWeight = 0.3

	hits := Rank([]float32{1, 0}, "deploy runbook", []*store.Record{other, match}, cfg)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].Record.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestRankFreshBoost(t *testing.T) {
	now := fixedNow()
	nowSec := float64(now.Unix())

	fresh := candidate(1, "a", nowSec-30*60, []float32{1, 0})   // 30 minutes old
	stale := candidate(2, "a", nowSec-48*3600, []float32{1, 0}) // 2 days old

	cfg := keepAll()
	cfg.TopK = 2
	cfg.FreshBoost = 0.5

	hits := Rank([]float32{1, 0}, "a", []*store.Record{stale, fresh}, cfg)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].Record.ID)

	// The boost is additive and bounded by alpha.
	assert.LessOrEqual(t, hits[0].Score, 1.0+0.5+1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score+0.2)
}

func TestRankMinScoreAfterTruncation(t *testing.T) {
	// One strong candidate, several weak ones. TopK keeps the best two,
	// then the cutoff drops the weak survivor: fewer than TopK results.
	strong := candidate(1, "strong", 0, []float32{1, 0})
	weak1 := candidate(2, "weak", 0, []float32{0, 1})
	weak2 := candidate(3, "weak", 0, []float32{0, 1})

	cfg := Config{TopK: 2, MinScore: 0.5, Now: fixedNow}
	hits := Rank([]float32{1, 0}, "q", []*store.Record{weak1, strong, weak2}, cfg)

	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].Record.ID)
}
