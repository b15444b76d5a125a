package memvec

import (
	"log/slog"

	"github.com/hupe1980/memvec/blobstore"
	"github.com/hupe1980/memvec/embedding"
)

// Defaults for engine construction. All of them can be overridden per option
// or per query.
const (
	// DefaultDimension is the vector length of the default embedding chain.
	DefaultDimension = 768

	// DefaultTopK is the number of hits a query returns when not overridden.
	DefaultTopK = 8

	// DefaultIndexK is the number of IVF centroids.
	DefaultIndexK = 64

	// DefaultIndexIters is the k-means iteration budget per build.
	DefaultIndexIters = 3

	// DefaultNProbe is the number of centroids probed per search.
	DefaultNProbe = 4

	// DefaultRebuildThreshold is the number of incremental inserts after
	// which an index counts as stale.
	DefaultRebuildThreshold = 512

	// DefaultMinViable is the record count below which building an index
	// is not worth it and queries scan instead.
	DefaultMinViable = 512

	// DefaultScanCap bounds the full-scan fallback: owners with more
	// records than this are scanned most-recent-first up to
	// DefaultRecentLimit.
	DefaultScanCap = 5000

	// DefaultRecentLimit is the recent-subset size used when an owner's
	// record count exceeds the scan cap and no index exists.
	DefaultRecentLimit = 2000

	// DefaultInjectMinScore is the score cutoff for prompt injection.
	DefaultInjectMinScore = 0.25
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	embedder         embedding.Embedder
	health           *embedding.HealthTracker
	blobs            blobstore.Store
	httpOptFns       []func(o *embedding.HTTPOptions)
	hashOnly         bool
	dimension        int
	indexK           int
	indexIters       int
	nprobe           int
	rebuildThreshold int
	minViable        int
	scanCap          int
	recentLimit      int
	seed             int64
}

// Option configures engine construction.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := memvec.NewJSONLogger(slog.LevelInfo)
//	eng, _ := memvec.New(path, memvec.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &memvec.BasicMetricsCollector{}
//	eng, _ := memvec.New(path, memvec.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithEmbedder replaces the default embedding chain (HTTP backend with
// feature-hash fallback) entirely. The engine dimension follows the
// embedder's.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithHealthTracker injects a shared backend health tracker. Useful when
// several engines share one embedding backend, and in tests that need to
// reset health state between cases.
func WithHealthTracker(h *embedding.HealthTracker) Option {
	return func(o *options) {
		o.health = h
	}
}

// WithHTTPBackend tunes the default HTTP embedding backend (base URL, model,
// timeouts). Ignored when WithEmbedder is set.
func WithHTTPBackend(optFns ...func(o *embedding.HTTPOptions)) Option {
	return func(o *options) {
		o.httpOptFns = optFns
	}
}

// WithHashOnly drops the HTTP backend and embeds exclusively with the
// deterministic feature-hash embedder. No network access, bit-identical
// vectors across runs. Intended for tests and air-gapped setups.
func WithHashOnly() Option {
	return func(o *options) {
		o.hashOnly = true
	}
}

// WithBlobStore replaces the default local-filesystem index blob store, e.g.
// with an S3- or MinIO-backed one so index blobs survive host loss.
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobs = s
	}
}

// WithDimension sets the collection dimensionality. Vectors of any other
// length are rejected, never truncated or padded.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithIndexParams sets the IVF geometry: K centroids, k-means iteration
// budget, and the default nprobe per search. Zero keeps a parameter's
// default.
func WithIndexParams(k, iters, nprobe int) Option {
	return func(o *options) {
		if k > 0 {
			o.indexK = k
		}
		if iters > 0 {
			o.indexIters = iters
		}
		if nprobe > 0 {
			o.nprobe = nprobe
		}
	}
}

// WithRebuildPolicy sets when MaybeRebuild acts: threshold is the number of
// incremental inserts after which an index is stale, minViable the record
// count at which an owner without an index gets its first build.
func WithRebuildPolicy(threshold, minViable int) Option {
	return func(o *options) {
		if threshold > 0 {
			o.rebuildThreshold = threshold
		}
		if minViable > 0 {
			o.minViable = minViable
		}
	}
}

// WithScanLimits bounds the no-index fallback: owners with more than scanCap
// records are scanned most-recent-first up to recentLimit.
func WithScanLimits(scanCap, recentLimit int) Option {
	return func(o *options) {
		if scanCap > 0 {
			o.scanCap = scanCap
		}
		if recentLimit > 0 {
			o.recentLimit = recentLimit
		}
	}
}

// WithSeed fixes the k-means seed for reproducible index builds.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		dimension:        DefaultDimension,
		indexK:           DefaultIndexK,
		indexIters:       DefaultIndexIters,
		nprobe:           DefaultNProbe,
		rebuildThreshold: DefaultRebuildThreshold,
		minViable:        DefaultMinViable,
		scanCap:          DefaultScanCap,
		recentLimit:      DefaultRecentLimit,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
