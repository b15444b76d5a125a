// Package memvec provides a retrieval-augmented memory engine.
//
// This file implements the fluent query API.
package memvec

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/memvec/rank"
	"github.com/hupe1980/memvec/store"
)

// QueryResult is one ranked query hit.
type QueryResult struct {
	// Record is the stored record, text and metadata verbatim.
	Record *store.Record

	// Score is the hybrid ranking score. Relative signal, not a
	// probability; comparable only within one query.
	Score float64
}

// Query creates a fluent query builder for the owner's collection.
//
// Example:
//
//	hits, err := eng.Query("agent-1", "deploy runbook").
//	    TopK(5).
//	    Decay(0.01).
//	    Hybrid(0.3).
//	    Execute(ctx)
func (e *Engine) Query(owner, text string) *QueryBuilder {
	return &QueryBuilder{
		engine:   e,
		owner:    owner,
		text:     text,
		topk:     DefaultTopK,
		minScore: math.Inf(-1),
	}
}

// QueryBuilder is a fluent builder for constructing queries.
type QueryBuilder struct {
	engine *Engine
	owner  string
	text   string

	topk     int
	minScore float64
	decay    float64
	hybrid   float64
	fresh    float64
	nprobe   int
}

// TopK sets the maximum number of hits to return.
func (qb *QueryBuilder) TopK(k int) *QueryBuilder {
	qb.topk = k
	return qb
}

// MinScore drops hits scoring below the cutoff. Applied after ranking and
// truncation, so fewer than TopK hits (including zero) is a legitimate
// result.
func (qb *QueryBuilder) MinScore(s float64) *QueryBuilder {
	qb.minScore = s
	return qb
}

// Decay enables exponential time decay: score *= exp(-lambda*age_days).
// Zero disables aging.
func (qb *QueryBuilder) Decay(lambda float64) *QueryBuilder {
	qb.decay = lambda
	return qb
}

// Hybrid blends a TF-IDF lexical score over the candidate set with the given
// weight. Zero (the default) keeps ranking purely vector-based.
func (qb *QueryBuilder) Hybrid(weight float64) *QueryBuilder {
	qb.hybrid = weight
	return qb
}

// FreshBoost adds alpha * sigmoid(1-age_hours), floating records from the
// last couple of hours upward. Zero disables the boost.
func (qb *QueryBuilder) FreshBoost(alpha float64) *QueryBuilder {
	qb.fresh = alpha
	return qb
}

// NProbe overrides the number of IVF centroids probed for this query.
// Higher probes more candidates: better recall, slower search.
func (qb *QueryBuilder) NProbe(n int) *QueryBuilder {
	qb.nprobe = n
	return qb
}

// Execute runs the query and returns ranked hits.
func (qb *QueryBuilder) Execute(ctx context.Context) ([]QueryResult, error) {
	e := qb.engine
	start := time.Now()
	hits, candidates, err := qb.execute(ctx)
	e.metrics.RecordQuery(candidates, len(hits), time.Since(start), err)
	e.logger.LogQuery(ctx, qb.owner, qb.topk, candidates, len(hits), err)
	return hits, err
}

func (qb *QueryBuilder) execute(ctx context.Context) ([]QueryResult, int, error) {
	e := qb.engine
	if e.closed.Load() {
		return nil, 0, ErrClosed
	}
	if qb.topk <= 0 {
		return nil, 0, ErrInvalidTopK
	}

	vecs, err := e.embed(ctx, []string{qb.text})
	if err != nil {
		return nil, 0, err
	}
	queryVec := vecs[0]

	candidates, err := qb.candidates(ctx, queryVec)
	if err != nil {
		return nil, 0, err
	}

	hits := rank.Rank(queryVec, qb.text, candidates, rank.Config{
		TopK:         qb.topk,
		MinScore:     qb.minScore,
		DecayLambda:  qb.decay,
		HybridWeight: qb.hybrid,
		FreshBoost:   qb.fresh,
	})

	results := make([]QueryResult, len(hits))
	for i, h := range hits {
		results[i] = QueryResult{Record: h.Record, Score: h.Score}
	}
	return results, len(candidates), nil
}

// candidates fetches the pre-ranking candidate set: IVF-probed records when
// an index exists, otherwise a bounded scan. An index probe that comes back
// empty degrades to the scan so queries never return nothing just because
// the probed centroids were sparse.
func (qb *QueryBuilder) candidates(ctx context.Context, queryVec []float32) ([]*store.Record, error) {
	e := qb.engine
	col := e.collection(qb.owner)
	e.ensureLoaded(ctx, col, qb.owner)

	if idx := col.index.Load(); idx != nil {
		ids, err := idx.Search(queryVec, qb.nprobe)
		if err != nil {
			return nil, translateError(err)
		}
		if len(ids) > 0 {
			recs, err := e.records.GetMany(ctx, qb.owner, ids)
			if err != nil {
				return nil, err
			}
			if len(recs) > 0 {
				return recs, nil
			}
		}
	}

	// Scan fallback, bounded to a recent subset for large collections.
	count, err := e.records.Count(ctx, qb.owner)
	if err != nil {
		return nil, err
	}
	if count > e.opts.scanCap {
		return e.records.ScanRecent(ctx, qb.owner, e.opts.recentLimit)
	}
	return e.records.Scan(ctx, qb.owner, 0)
}

// First returns only the best hit, or ErrNotFound when nothing clears the
// score cutoff.
func (qb *QueryBuilder) First(ctx context.Context) (QueryResult, error) {
	qb.topk = 1
	hits, err := qb.Execute(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	if len(hits) == 0 {
		return QueryResult{}, ErrNotFound
	}
	return hits[0], nil
}

// Exists checks whether at least one hit clears the score cutoff.
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	qb.topk = 1
	hits, err := qb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// InjectOptions configures InjectForPrompt.
type InjectOptions struct {
	// TopK is the maximum number of memory lines.
	TopK int

	// MinScore drops weak hits before formatting. The default is
	// deliberately conservative: an irrelevant memory in the prompt is
	// worse than none.
	MinScore float64

	// DecayLambda, HybridWeight and FreshBoost are passed through to the
	// query, see QueryBuilder.
	DecayLambda  float64
	HybridWeight float64
	FreshBoost   float64

	// Header is the first line of the injected block.
	Header string
}

// InjectForPrompt queries the owner's memory and formats the hits as a
// ready-to-inject prompt block:
//
//	### Retrieved long-term memory:
//	- (0.87) the deploy runbook lives in ops/deploy.md
//	- (0.54) deploys go out tuesdays
//
// Returns the empty string when nothing clears MinScore, so callers can
// append the result unconditionally.
func (e *Engine) InjectForPrompt(ctx context.Context, owner, query string, optFns ...func(o *InjectOptions)) (string, error) {
	opts := InjectOptions{
		TopK:     DefaultTopK,
		MinScore: DefaultInjectMinScore,
		Header:   "### Retrieved long-term memory",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	hits, err := e.Query(owner, query).
		TopK(opts.TopK).
		MinScore(opts.MinScore).
		Decay(opts.DecayLambda).
		Hybrid(opts.HybridWeight).
		FreshBoost(opts.FreshBoost).
		Execute(ctx)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(opts.Header)
	sb.WriteString(":\n")
	for _, h := range hits {
		fmt.Fprintf(&sb, "- (%.2f) %s\n", h.Score, h.Record.Text)
	}
	return sb.String(), nil
}
