package diskcore

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
//	    readCounter   prometheus.Counter
//	    readHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordRead(duration time.Duration, err error) {
//	    p.readCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordRead is called after each block read.
	// duration is the total time taken, err is nil if successful.
	RecordRead(duration time.Duration, err error)

	// RecordWrite is called after each block write.
	RecordWrite(duration time.Duration, err error)

	// RecordPrefetch is called after each prefetch operation.
	// count is the number of blocks requested, duration is the total time
	// taken, err is nil if every block was read.
	RecordPrefetch(count int, duration time.Duration, err error)

	// RecordAlloc is called after each page allocation attempt.
	// ok is false when the arena was exhausted.
	RecordAlloc(ok bool)

	// RecordFree is called after each page free.
	RecordFree()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(time.Duration, error)          {}
func (NoopMetricsCollector) RecordWrite(time.Duration, error)         {}
func (NoopMetricsCollector) RecordPrefetch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordAlloc(bool)                         {}
func (NoopMetricsCollector) RecordFree()                              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	PrefetchCount   atomic.Int64
	PrefetchBlocks  atomic.Int64
	PrefetchErrors  atomic.Int64
	AllocCount      atomic.Int64
	AllocFailures   atomic.Int64
	FreeCount       atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordPrefetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrefetch(count int, duration time.Duration, err error) {
	b.PrefetchCount.Add(1)
	b.PrefetchBlocks.Add(int64(count))
	if err != nil {
		b.PrefetchErrors.Add(1)
	}
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(ok bool) {
	b.AllocCount.Add(1)
	if !ok {
		b.AllocFailures.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree() {
	b.FreeCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   b.getAvgReadNanos(),
		WriteCount:     b.WriteCount.Load(),
		WriteErrors:    b.WriteErrors.Load(),
		WriteAvgNanos:  b.getAvgWriteNanos(),
		PrefetchCount:  b.PrefetchCount.Load(),
		PrefetchBlocks: b.PrefetchBlocks.Load(),
		PrefetchErrors: b.PrefetchErrors.Load(),
		AllocCount:     b.AllocCount.Load(),
		AllocFailures:  b.AllocFailures.Load(),
		FreeCount:      b.FreeCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgReadNanos() int64 {
	count := b.ReadCount.Load()
	if count == 0 {
		return 0
	}
	return b.ReadTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgWriteNanos() int64 {
	count := b.WriteCount.Load()
	if count == 0 {
		return 0
	}
	return b.WriteTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	WriteCount     int64
	WriteErrors    int64
	WriteAvgNanos  int64
	PrefetchCount  int64
	PrefetchBlocks int64
	PrefetchErrors int64
	AllocCount     int64
	AllocFailures  int64
	FreeCount      int64
}
