package diskcore

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/diskcore/bufcache"
	"github.com/hupe1980/diskcore/pagealloc"
)

// DefaultPagesPerCore is the default page arena size per core.
const DefaultPagesPerCore = 64

type options struct {
	cacheOptions     []bufcache.Option
	pageCores        int
	pagesPerCore     int
	pageOptions      []pagealloc.Option
	enablePages      bool
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Core constructor behavior.
type Option func(*options)

// WithCacheSize sets the buffer pool size of the block cache.
func WithCacheSize(numBufs int) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, bufcache.WithNumBufs(numBufs))
	}
}

// WithBucketCount sets the shard count of the block cache's fast-path
// index.
func WithBucketCount(numBuckets int) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, bufcache.WithNumBuckets(numBuckets))
	}
}

// WithBlockSize sets the block size in bytes. Every attached device must
// use the same block size.
func WithBlockSize(blockSize int) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, bufcache.WithBlockSize(blockSize))
	}
}

// WithPageArena sizes the physical page arena: numCores independent free
// lists with pagesPerCore pages each. Additional pagealloc options (page
// size, poisoning, auditing) pass through.
//
// Example with allocation auditing enabled:
//
//	core, _ := diskcore.New(
//	    diskcore.WithPageArena(4, 256, pagealloc.WithAudit()),
//	)
func WithPageArena(numCores, pagesPerCore int, optFns ...pagealloc.Option) Option {
	return func(o *options) {
		o.enablePages = true
		o.pageCores = numCores
		o.pagesPerCore = pagesPerCore
		o.pageOptions = optFns
	}
}

// WithoutPageAllocator disables the page allocator. AllocPage reports
// failure and FreePage panics.
func WithoutPageAllocator() Option {
	return func(o *options) {
		o.enablePages = false
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &diskcore.BasicMetricsCollector{}
//	core, _ := diskcore.New(diskcore.WithMetricsCollector(metrics))
//	// ... use core ...
//	stats := metrics.GetStats()
//	fmt.Printf("Reads: %d, Avg latency: %dns\n", stats.ReadCount, stats.ReadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations. Pass nil to
// disable logging.
//
// Example with JSON logging:
//
//	logger := diskcore.NewJSONLogger(slog.LevelInfo)
//	core, _ := diskcore.New(diskcore.WithLogger(logger))
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

func applyOptions(optFns []Option) options {
	o := options{
		pageCores:        runtime.NumCPU(),
		pagesPerCore:     DefaultPagesPerCore,
		enablePages:      true,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
