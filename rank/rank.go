package rank

import (
	"math"
	"sort"
	"time"

	"github.com/hupe1980/memvec/distance"
	"github.com/hupe1980/memvec/lexical/tfidf"
	"github.com/hupe1980/memvec/store"
)

// Scores closer than this are ties, broken by descending timestamp.
const scoreEpsilon = 1e-9

// Config controls one ranking pass.
type Config struct {
	// TopK truncates the ranked list. <= 0 means no truncation.
	TopK int

	// MinScore drops hits scoring below it, after ranking and truncation.
	// Use math.Inf(-1) to keep everything.
	MinScore float64

	// DecayLambda down-weights older records: score *= exp(-lambda*age_days).
	// Zero disables aging.
	DecayLambda float64

	// HybridWeight blends a TF-IDF lexical score over the candidate set:
	// score += weight * lexical. Zero disables the lexical term.
	HybridWeight float64

	// FreshBoost adds alpha * sigmoid(1-age_hours) so records from the last
	// couple of hours float upward. Zero disables the boost.
	FreshBoost float64

	// Now is the clock used for decay and freshness. Nil means time.Now.
	Now func() time.Time
}

// Hit is one ranked result.
type Hit struct {
	Record *store.Record
	Score  float64
}

// Rank scores candidates against the query and returns hits sorted by
// descending score, truncated to TopK, then filtered by MinScore. The filter
// runs last, so fewer than TopK hits (including zero) is a legitimate result.
// An empty candidate set ranks to an empty list, never an error.
//
// The query vector and candidate vectors are assumed L2-normalized, so the
// dot product is the cosine similarity.
func Rank(queryVec []float32, queryText string, candidates []*store.Record, cfg Config) []Hit {
	if len(candidates) == 0 {
		return nil
	}

	scores := make([]float64, len(candidates))
	for i, rec := range candidates {
		scores[i] = float64(distance.Dot(queryVec, rec.Vector))
	}

	if cfg.HybridWeight > 0 {
		docs := make([]string, len(candidates))
		for i, rec := range candidates {
			docs[i] = rec.Text
		}
		lexical := tfidf.NewScorer(docs).Scores(queryText)
		for i := range scores {
			scores[i] += cfg.HybridWeight * lexical[i]
		}
	}

	now := time.Now()
	if cfg.Now != nil {
		now = cfg.Now()
	}
	nowSec := float64(now.UnixNano()) / 1e9

	if cfg.DecayLambda > 0 {
		for i, rec := range candidates {
			ageDays := (nowSec - rec.Timestamp) / 86400.0
			scores[i] *= math.Exp(-cfg.DecayLambda * ageDays)
		}
	}

	if cfg.FreshBoost > 0 {
		for i, rec := range candidates {
			ageHours := (nowSec - rec.Timestamp) / 3600.0
			scores[i] += cfg.FreshBoost / (1.0 + math.Exp(ageHours-1.0))
		}
	}

	hits := make([]Hit, len(candidates))
	for i, rec := range candidates {
		hits[i] = Hit{Record: rec, Score: scores[i]}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if math.Abs(hits[i].Score-hits[j].Score) <= scoreEpsilon {
			return hits[i].Record.Timestamp > hits[j].Record.Timestamp
		}
		return hits[i].Score > hits[j].Score
	})

	if cfg.TopK > 0 && len(hits) > cfg.TopK {
		hits = hits[:cfg.TopK]
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.Score >= cfg.MinScore {
			filtered = append(filtered, h)
		}
	}
	return filtered
}
