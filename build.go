package memvec

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/memvec/blobstore"
	"github.com/hupe1980/memvec/index/ivf"
)

// ensureLoaded lazily loads the owner's persisted index blob, once per
// process. A missing or unreadable blob leaves the collection in the
// scan-fallback state; it is never an error.
func (e *Engine) ensureLoaded(ctx context.Context, col *collection, owner string) {
	col.loadOnce.Do(func() {
		idx, err := e.loadIndex(ctx, owner)
		if err != nil {
			e.logger.WarnContext(ctx, "index load failed, falling back to scan",
				"owner", owner,
				"error", err,
			)
			return
		}
		if idx != nil {
			col.index.Store(idx)
		}
	})
}

// loadIndex picks the owner's best persisted index: matching dimension,
// highest K. Blobs with a foreign dimension are ignored, not errors - they
// belong to a differently configured engine.
func (e *Engine) loadIndex(ctx context.Context, owner string) (*ivf.Index, error) {
	keys, err := e.blobs.List(ctx, ivf.BlobPrefix(owner))
	if err != nil {
		return nil, err
	}

	bestKey := ""
	bestK := 0
	for _, key := range keys {
		dim, k, ok := ivf.ParseBlobKey(key)
		if !ok || dim != e.opts.dimension {
			continue
		}
		if k > bestK {
			bestK = k
			bestKey = key
		}
	}
	if bestKey == "" {
		return nil, nil
	}

	blob, err := e.blobs.Get(ctx, bestKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ivf.UnmarshalBinary(blob)
}

func (e *Engine) persistIndex(ctx context.Context, owner string, idx *ivf.Index) error {
	blob, err := idx.MarshalBinary()
	if err != nil {
		return err
	}
	return e.blobs.Put(ctx, ivf.BlobKey(owner, idx.Dimension(), idx.K()), blob)
}

// Build runs a full k-means recompute over all of the owner's records,
// persists the resulting index blob, and swaps it in atomically. Readers are
// never blocked: searches during the build serve the previous index (or the
// scan fallback).
//
// Builds are exclusive per owner; concurrent calls for the same owner
// coalesce into a single build. Different owners build independently.
func (e *Engine) Build(ctx context.Context, owner string, optFns ...func(o *ivf.BuildOptions)) error {
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	_, err, _ := e.buildGroup.Do(owner, func() (any, error) {
		return nil, e.build(ctx, owner, optFns)
	})
	e.metrics.RecordBuild(time.Since(start), err)
	return err
}

func (e *Engine) build(ctx context.Context, owner string, optFns []func(o *ivf.BuildOptions)) error {
	col := e.collection(owner)

	// Capture inserts that race this build: a record added after the scan
	// below lands only in the generation the swap discards, so it is
	// recorded here and replayed into the fresh index before the swap.
	col.mu.Lock()
	col.building = true
	col.pending = nil
	col.mu.Unlock()
	defer func() {
		col.mu.Lock()
		col.building = false
		col.pending = nil
		col.mu.Unlock()
	}()

	recs, err := e.records.Scan(ctx, owner, 0)
	if err != nil {
		err = &ErrIndexBuild{Owner: owner, cause: err}
		e.logger.LogBuild(ctx, owner, e.opts.indexK, 0, err)
		return err
	}
	if len(recs) == 0 {
		err = &ErrIndexBuild{Owner: owner, cause: ivf.ErrNoVectors}
		e.logger.LogBuild(ctx, owner, e.opts.indexK, 0, err)
		return err
	}

	vectors := make([][]float32, len(recs))
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		vectors[i] = rec.Vector
		ids[i] = rec.ID
	}

	buildOptFns := append([]func(o *ivf.BuildOptions){
		func(o *ivf.BuildOptions) {
			o.K = e.opts.indexK
			o.Iters = e.opts.indexIters
			o.NProbe = e.opts.nprobe
			o.Seed = e.opts.seed
		},
	}, optFns...)

	idx, err := ivf.Build(ctx, vectors, ids, buildOptFns...)
	if err != nil {
		err = &ErrIndexBuild{Owner: owner, cause: err}
		e.logger.LogBuild(ctx, owner, e.opts.indexK, len(recs), err)
		return err
	}

	if err := e.persistIndex(ctx, owner, idx); err != nil {
		err = &ErrIndexBuild{Owner: owner, cause: err}
		e.logger.LogBuild(ctx, owner, idx.K(), len(recs), err)
		return err
	}

	// Scan returns records in id order, so the last one bounds the snapshot.
	maxID := recs[len(recs)-1].ID

	col.mu.Lock()
	replayed := false
	for _, p := range col.pending {
		if p.id <= maxID {
			continue // already in the build snapshot
		}
		if insErr := idx.Insert(p.id, p.vec); insErr != nil {
			e.logger.WarnContext(ctx, "replaying insert into rebuilt index failed",
				"owner", owner,
				"id", p.id,
				"error", insErr,
			)
			continue
		}
		replayed = true
	}
	col.pending = nil
	col.building = false
	// Replayed inserts are not in the persisted blob; Close or the next
	// build flushes them. Set before the swap so an insert landing in the
	// fresh index cannot have its dirty mark overwritten.
	col.dirty.Store(replayed)
	// Mark loaded so a later ensureLoaded does not clobber the fresh index
	// with the blob it would read back.
	col.loadOnce.Do(func() {})
	col.index.Store(idx)
	col.mu.Unlock()

	e.logger.LogBuild(ctx, owner, idx.K(), len(recs), nil)
	return nil
}

// NeedsRebuild reports whether the owner's index is stale: more incremental
// inserts since the last build than the configured threshold, or no index at
// all for an owner that has reached the minimum viable record count.
func (e *Engine) NeedsRebuild(ctx context.Context, owner string) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}

	col := e.collection(owner)
	e.ensureLoaded(ctx, col, owner)

	count, err := e.records.Count(ctx, owner)
	if err != nil {
		return false, err
	}

	idx := col.index.Load()
	var sinceBuild uint64
	if idx != nil {
		sinceBuild = idx.SinceBuild()
	}
	return ivf.ShouldRebuild(idx != nil, count, sinceBuild, e.opts.rebuildThreshold, e.opts.minViable), nil
}

// MaybeRebuild builds the owner's index when NeedsRebuild says so. Returns
// whether a build ran. The build runs synchronously on the caller's
// goroutine; callers that want it off the hot path run it in their own.
// Intended to be called opportunistically after ingestion bursts.
func (e *Engine) MaybeRebuild(ctx context.Context, owner string) (bool, error) {
	needed, err := e.NeedsRebuild(ctx, owner)
	if err != nil || !needed {
		return false, err
	}
	if err := e.Build(ctx, owner); err != nil {
		return false, err
	}
	return true, nil
}
