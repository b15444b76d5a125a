package memvec

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/memvec/blobstore"
	"github.com/hupe1980/memvec/embedding"
	"github.com/hupe1980/memvec/index/ivf"
	"github.com/hupe1980/memvec/store"
)

// Engine is the retrieval-augmented memory engine: a durable record store,
// per-owner IVF indexes, and an embedding provider chain behind one facade.
//
// Safe for concurrent use.
type Engine struct {
	opts     options
	records  store.Store
	blobs    blobstore.Store
	embedder embedding.Embedder
	metrics  MetricsCollector
	logger   *Logger

	mu          sync.Mutex
	collections map[string]*collection

	// buildGroup makes index builds exclusive per owner; concurrent Build
	// calls for the same owner coalesce into one.
	buildGroup singleflight.Group

	closed atomic.Bool
}

// collection is the per-owner in-memory index state. The record store is the
// source of truth; everything here is derived and rebuildable.
type collection struct {
	index    atomic.Pointer[ivf.Index]
	loadOnce sync.Once

	// dirty marks incremental inserts not yet persisted to the blob store.
	dirty atomic.Bool

	// mu guards the build handoff. Inserts that race an in-flight build are
	// recorded in pending and replayed into the fresh index before it is
	// swapped in, so they cannot vanish with the generation the swap
	// discards.
	mu       sync.Mutex
	building bool
	pending  []pendingInsert
}

type pendingInsert struct {
	id  int64
	vec []float32
}

// New opens (or creates) an engine rooted at dir. Records live in
// dir/memvec.db, index blobs under dir/index unless WithBlobStore overrides.
//
// The default embedding chain is an Ollama-compatible HTTP backend with a
// deterministic feature-hash fallback, so New succeeds and Add keeps working
// with no model server running.
func New(dir string, optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)

	embedder := opts.embedder
	if embedder == nil {
		health := opts.health
		if health == nil {
			health = embedding.NewHealthTracker()
		}

		fallback := embedding.NewHash(opts.dimension)
		if opts.hashOnly {
			embedder = fallback
		} else {
			httpOptFns := append([]func(o *embedding.HTTPOptions){}, opts.httpOptFns...)
			// Engine dimension is authoritative.
			httpOptFns = append(httpOptFns, func(o *embedding.HTTPOptions) {
				o.Dimension = opts.dimension
			})
			remote := embedding.NewHTTP(httpOptFns...)

			cascade, err := embedding.NewCascade(health, remote, fallback)
			if err != nil {
				return nil, fmt.Errorf("memvec: embedding chain: %w", err)
			}
			logger := opts.logger
			metrics := opts.metricsCollector
			cascade.OnFallback(func(from, to string, cause error) {
				logger.LogFallback(context.Background(), from, to, cause)
				metrics.RecordEmbedFallback()
			})
			embedder = cascade
		}
	} else {
		opts.dimension = embedder.Dimension()
	}

	records, err := store.NewSQLite(filepath.Join(dir, "memvec.db"), opts.dimension)
	if err != nil {
		return nil, fmt.Errorf("memvec: open record store: %w", err)
	}

	blobs := opts.blobs
	if blobs == nil {
		blobs, err = blobstore.NewLocalStore(filepath.Join(dir, "index"))
		if err != nil {
			_ = records.Close()
			return nil, fmt.Errorf("memvec: open blob store: %w", err)
		}
	}

	return &Engine{
		opts:        opts,
		records:     records,
		blobs:       blobs,
		embedder:    embedder,
		metrics:     opts.metricsCollector,
		logger:      opts.logger,
		collections: make(map[string]*collection),
	}, nil
}

// Dimension returns the collection dimensionality.
func (e *Engine) Dimension() int { return e.opts.dimension }

func (e *Engine) collection(owner string) *collection {
	e.mu.Lock()
	defer e.mu.Unlock()
	col, ok := e.collections[owner]
	if !ok {
		col = &collection{}
		e.collections[owner] = col
	}
	return col
}

func (e *Engine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, translateError(err)
	}
	return vecs, nil
}

// Add embeds text and persists it as one record for owner. The returned id
// is durable once Add returns. A text whose normalized form already exists
// for the owner is deduplicated: the existing record's timestamp and
// frequency are bumped and its id returned.
func (e *Engine) Add(ctx context.Context, owner, text string, meta store.Metadata) (int64, error) {
	start := time.Now()
	id, deduped, err := e.add(ctx, owner, text, meta, 0)
	e.metrics.RecordAdd(time.Since(start), deduped, err)
	e.logger.LogAdd(ctx, owner, id, deduped, err)
	return id, err
}

func (e *Engine) add(ctx context.Context, owner, text string, meta store.Metadata, ts float64) (int64, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}

	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return 0, false, err
	}

	rec := &store.Record{
		Owner:     owner,
		Timestamp: ts,
		Text:      text,
		Metadata:  meta,
		Vector:    vecs[0],
	}
	id, deduped, err := e.records.Add(ctx, rec)
	if err != nil {
		if translated := translateError(err); translated != err {
			return 0, false, translated
		}
		return 0, false, &ErrStoreWrite{Owner: owner, cause: err}
	}

	if !deduped {
		e.indexInsert(ctx, owner, id, rec.Vector)
	}
	return id, deduped, nil
}

// indexInsert makes a fresh record visible to search via the cheap
// incremental path. Failures degrade to the scan fallback instead of failing
// the add; the record is durable either way.
func (e *Engine) indexInsert(ctx context.Context, owner string, id int64, vec []float32) {
	col := e.collection(owner)
	e.ensureLoaded(ctx, col, owner)

	col.mu.Lock()
	if col.building {
		col.pending = append(col.pending, pendingInsert{id: id, vec: vec})
	}
	col.mu.Unlock()

	idx := col.index.Load()
	if idx == nil {
		return
	}
	if err := idx.Insert(id, vec); err != nil {
		e.logger.WarnContext(ctx, "incremental index insert failed",
			"owner", owner,
			"id", id,
			"error", err,
		)
		return
	}
	col.dirty.Store(true)
}

// Item is one batch-add input.
type Item struct {
	Text     string
	Metadata store.Metadata

	// Timestamp overrides the record time (seconds since epoch).
	// Zero means now.
	Timestamp float64
}

// AddBatch embeds and persists items in one store transaction, preserving
// input order in the returned ids. More efficient than repeated Add: one
// embedding round-trip and one commit for the whole batch.
func (e *Engine) AddBatch(ctx context.Context, owner string, items []Item) ([]int64, error) {
	start := time.Now()
	ids, dedupedCount, err := e.addBatch(ctx, owner, items)
	e.metrics.RecordBatchAdd(len(items), dedupedCount, time.Since(start), err)
	e.logger.LogBatchAdd(ctx, owner, len(items), dedupedCount, err)
	return ids, err
}

func (e *Engine) addBatch(ctx context.Context, owner string, items []Item) ([]int64, int, error) {
	if e.closed.Load() {
		return nil, 0, ErrClosed
	}
	if len(items) == 0 {
		return nil, 0, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}
	vecs, err := e.embed(ctx, texts)
	if err != nil {
		return nil, 0, err
	}

	recs := make([]*store.Record, len(items))
	for i, item := range items {
		recs[i] = &store.Record{
			Owner:     owner,
			Timestamp: item.Timestamp,
			Text:      item.Text,
			Metadata:  item.Metadata,
			Vector:    vecs[i],
		}
	}

	ids, deduped, err := e.records.AddBatch(ctx, recs)
	if err != nil {
		if translated := translateError(err); translated != err {
			return nil, 0, translated
		}
		return nil, 0, &ErrStoreWrite{Owner: owner, cause: err}
	}

	dedupedCount := 0
	for i := range ids {
		if deduped[i] {
			dedupedCount++
			continue
		}
		e.indexInsert(ctx, owner, ids[i], recs[i].Vector)
	}
	return ids, dedupedCount, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id int64) (*store.Record, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	rec, err := e.records.Get(ctx, id)
	return rec, translateError(err)
}

// Count returns the number of records stored for owner.
func (e *Engine) Count(ctx context.Context, owner string) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	return e.records.Count(ctx, owner)
}

// Owners returns all owners with at least one record.
func (e *Engine) Owners(ctx context.Context) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.records.Owners(ctx)
}

// Close flushes unpersisted index state and closes the record store.
// The engine is unusable afterwards.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Best effort: flush incremental inserts so a restart loads an index
	// that already contains them. The store remains authoritative either
	// way.
	ctx := context.Background()
	e.mu.Lock()
	for owner, col := range e.collections {
		if !col.dirty.Load() {
			continue
		}
		if idx := col.index.Load(); idx != nil {
			if err := e.persistIndex(ctx, owner, idx); err != nil {
				e.logger.WarnContext(ctx, "index flush on close failed",
					"owner", owner,
					"error", err,
				)
			}
		}
	}
	e.mu.Unlock()

	return e.records.Close()
}
