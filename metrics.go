package memvec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    addCounter     prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAdd(duration time.Duration, deduped bool, err error) {
//	    p.addCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordAdd is called after each add operation.
	// deduped is true when the text collapsed onto an existing record.
	RecordAdd(duration time.Duration, deduped bool, err error)

	// RecordBatchAdd is called after each batch add operation.
	// count is the number of items attempted, deduped the number that
	// collapsed onto existing records.
	RecordBatchAdd(count, deduped int, duration time.Duration, err error)

	// RecordQuery is called after each query.
	// candidates is the size of the pre-ranking candidate set.
	RecordQuery(candidates, results int, duration time.Duration, err error)

	// RecordBuild is called after each index build attempt.
	RecordBuild(duration time.Duration, err error)

	// RecordEmbedFallback is called whenever the primary embedding backend
	// fails over to a fallback.
	RecordEmbedFallback()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, bool, error)           {}
func (NoopMetricsCollector) RecordBatchAdd(int, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordBuild(time.Duration, error)               {}
func (NoopMetricsCollector) RecordEmbedFallback()                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount        atomic.Int64
	AddDeduped      atomic.Int64
	AddErrors       atomic.Int64
	AddTotalNanos   atomic.Int64
	BatchAddCount   atomic.Int64
	BatchAddItems   atomic.Int64
	BatchAddDeduped atomic.Int64
	BatchAddErrors  atomic.Int64
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	BuildCount      atomic.Int64
	BuildErrors     atomic.Int64
	BuildTotalNanos atomic.Int64
	EmbedFallbacks  atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, deduped bool, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if deduped {
		b.AddDeduped.Add(1)
	}
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordBatchAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchAdd(count, deduped int, duration time.Duration, err error) {
	b.BatchAddCount.Add(1)
	b.BatchAddItems.Add(int64(count))
	b.BatchAddDeduped.Add(int64(deduped))
	if err != nil {
		b.BatchAddErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(candidates, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordEmbedFallback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEmbedFallback() {
	b.EmbedFallbacks.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:        b.AddCount.Load(),
		AddDeduped:      b.AddDeduped.Load(),
		AddErrors:       b.AddErrors.Load(),
		AddAvgNanos:     avg(b.AddTotalNanos.Load(), b.AddCount.Load()),
		BatchAddCount:   b.BatchAddCount.Load(),
		BatchAddItems:   b.BatchAddItems.Load(),
		BatchAddDeduped: b.BatchAddDeduped.Load(),
		BatchAddErrors:  b.BatchAddErrors.Load(),
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryAvgNanos:   avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildAvgNanos:   avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		EmbedFallbacks:  b.EmbedFallbacks.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount        int64
	AddDeduped      int64
	AddErrors       int64
	AddAvgNanos     int64
	BatchAddCount   int64
	BatchAddItems   int64
	BatchAddDeduped int64
	BatchAddErrors  int64
	QueryCount      int64
	QueryErrors     int64
	QueryAvgNanos   int64
	BuildCount      int64
	BuildErrors     int64
	BuildAvgNanos   int64
	EmbedFallbacks  int64
}
