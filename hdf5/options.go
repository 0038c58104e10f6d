package hdf5

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/h5coro-go/h5coro/internal/assembler"
	"github.com/h5coro-go/h5coro/internal/driver"
)

const (
	// DefaultBlockSize is the cache's fixed block granularity: every driver
	// read is rounded out to this alignment, so a request for a handful of
	// bytes still fetches (and can reuse) one whole block.
	DefaultBlockSize = 4 * 1024 * 1024 // 4 MiB

	// DefaultCacheBudget is the maximum number of bytes the block cache
	// keeps resident before evicting unpinned blocks.
	DefaultCacheBudget = 256 * 1024 * 1024 // 256 MiB
)

// Options configures how a File is opened: the I/O driver, the block
// cache's sizing, the dataset assembler's worker pool, and logging.
// The zero value is not usable directly; build one with NewOptions.
type Options struct {
	blockSize   int
	cacheBudget int64
	workers     int
	logger      *zap.SugaredLogger
	driver      driver.Driver         // overrides the driver Open/OpenURL would otherwise construct
	metricsReg  prometheus.Registerer // if set, the block cache registers Hits/Misses/Evictions/InFlight here

	// httpRangeOpts are forwarded to driver.NewHTTPRange when OpenURL builds
	// its own driver.HTTPRange; set by WithCredentials/WithDefaultCredentialChain.
	// Ignored if WithDriver supplies a pre-built driver instead.
	httpRangeOpts []driver.HTTPRangeOption
}

// FileOption configures Options.
type FileOption func(*Options)

// NewOptions builds an Options with this package's defaults: a 4 MiB cache
// block size, a 256 MiB cache budget, 4*NumCPU assembler workers, and a
// no-op logger.
func NewOptions(opts ...FileOption) *Options {
	o := &Options{
		blockSize:   DefaultBlockSize,
		cacheBudget: DefaultCacheBudget,
		workers:     assembler.DefaultWorkers(runtime.NumCPU()),
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithBlockSize sets the cache's block alignment in bytes. Reads are
// rounded out to this size before being fetched through the driver.
func WithBlockSize(bytes int) FileOption {
	return func(o *Options) {
		if bytes > 0 {
			o.blockSize = bytes
		}
	}
}

// WithCacheBudget sets the maximum number of bytes the block cache keeps
// resident before evicting unpinned blocks.
func WithCacheBudget(bytes int64) FileOption {
	return func(o *Options) {
		if bytes > 0 {
			o.cacheBudget = bytes
		}
	}
}

// WithWorkers sets the number of chunks the dataset assembler fetches and
// decodes concurrently.
func WithWorkers(n int) FileOption {
	return func(o *Options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the structured logger used for cache and assembler
// diagnostics. A nil logger is ignored.
func WithLogger(logger *zap.SugaredLogger) FileOption {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDriver overrides the I/O driver Open/OpenURL would otherwise
// construct. Use this to supply a pre-authenticated driver.HTTPRange (or
// any custom driver.Driver) instead of letting Open build a driver.Local
// or OpenURL build a default driver.HTTPRange.
func WithDriver(d driver.Driver) FileOption {
	return func(o *Options) {
		if d != nil {
			o.driver = d
		}
	}
}

// WithCredentials configures OpenURL's driver.HTTPRange to sign every range
// request with the given static object-storage credentials, per spec's
// `{ aws_access_key_id, aws_secret_access_key, aws_session_token }`
// injection contract. Has no effect on Open or when WithDriver supplies a
// pre-built driver.
func WithCredentials(c driver.Credentials) FileOption {
	return func(o *Options) {
		o.httpRangeOpts = append(o.httpRangeOpts, driver.WithCredentials(c))
	}
}

// WithDefaultCredentialChain configures OpenURL's driver.HTTPRange to sign
// range requests using credentials obtained from the host's standard AWS
// credential chain, per spec's credential-chain fallback. Has no effect on
// Open or when WithDriver supplies a pre-built driver.
func WithDefaultCredentialChain(region string) FileOption {
	return func(o *Options) {
		o.httpRangeOpts = append(o.httpRangeOpts, driver.WithDefaultCredentialChain(region))
	}
}

// WithMetrics registers the block cache's hit/miss/eviction counters and
// in-flight gauge with reg. A nil reg is ignored; without this option the
// cache tracks nothing beyond what its debug logging already reports.
func WithMetrics(reg prometheus.Registerer) FileOption {
	return func(o *Options) {
		if reg != nil {
			o.metricsReg = reg
		}
	}
}

// buildCacheMetrics constructs and registers the cache's Prometheus
// collectors against o.metricsReg, or returns nil if no registerer was
// configured.
func (o *Options) buildCacheMetrics() *cacheMetrics {
	if o.metricsReg == nil {
		return nil
	}

	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "h5coro_cache_hits_total",
		Help: "Block cache reads served from resident blocks.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "h5coro_cache_misses_total",
		Help: "Block cache reads that required a driver fetch.",
	})
	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "h5coro_cache_evictions_total",
		Help: "Unpinned blocks evicted to stay within the cache budget.",
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "h5coro_cache_inflight_fetches",
		Help: "Driver fetches currently in flight, coalesced by single-flight.",
	})

	o.metricsReg.MustRegister(hits, misses, evictions, inFlight)

	return &cacheMetrics{hits: hits, misses: misses, evictions: evictions, inFlight: inFlight}
}

// cacheMetrics holds the concrete Prometheus collectors backing
// cache.Metrics, kept here rather than in internal/cache so that package
// has no direct dependency on the prometheus client.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	inFlight  prometheus.Gauge
}
