// Package cache implements the block-indexed byte cache that sits between
// the dataset assembler and an I/O driver. All file bytes this module reads
// pass through a Cache; there is no direct-to-driver read path.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"github.com/h5coro-go/h5coro/internal/driver"
	"github.com/h5coro-go/h5coro/internal/herrors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the default cache block size, 4 MiB.
const DefaultBlockSize = 4 << 20

// DefaultBudget is the default cache byte budget, 256 MiB.
const DefaultBudget = 256 << 20

// blockKey identifies one fixed-size block of the underlying file.
type blockKey int64

type entry struct {
	data    []byte
	refs    int
	elem    *list.Element // position in lru, nil while pinned and removed from the list
	evicted bool
}

// Metrics is the optional set of Prometheus collectors the cache reports
// to, registered by the caller via Options. Any field may be nil.
type Metrics struct {
	Hits      PrometheusCounter
	Misses    PrometheusCounter
	Evictions PrometheusCounter
	InFlight  PrometheusGauge
}

// PrometheusCounter is the subset of prometheus.Counter this package needs,
// kept narrow so callers can pass a real counter without this package
// importing the client library's concrete types directly.
type PrometheusCounter interface{ Inc() }

// PrometheusGauge is the subset of prometheus.Gauge this package needs.
type PrometheusGauge interface {
	Inc()
	Dec()
}

// Cache is an LRU cache of fixed-size blocks read from a driver.Driver,
// keyed by block index. A contiguous run of missing blocks is filled by a
// single driver.Read covering the whole run, and concurrent misses for the
// exact same run are coalesced via singleflight so only one physical read
// happens for it. A block with a positive reference count is pinned and is
// never chosen for eviction; callers must call Release for every PinRead
// to unpin it.
type Cache struct {
	mu sync.Mutex

	drv       driver.Driver
	blockSize int64
	budget    int64
	used      int64

	blocks map[blockKey]*entry
	lru    *list.List // front = MRU, back = LRU; holds blockKey values

	group   singleflight.Group
	log     *zap.SugaredLogger
	metrics *Metrics
}

// Config configures a new Cache.
type Config struct {
	Driver    driver.Driver
	BlockSize int64 // defaults to DefaultBlockSize if <= 0
	Budget    int64 // defaults to DefaultBudget if <= 0
	Logger    *zap.SugaredLogger
	Metrics   *Metrics
}

// New builds a Cache over the given driver.
func New(cfg Config) *Cache {
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Cache{
		drv:       cfg.Driver,
		blockSize: blockSize,
		budget:    budget,
		blocks:    make(map[blockKey]*entry),
		lru:       list.New(),
		log:       log,
		metrics:   cfg.Metrics,
	}
}

// BlockSize returns the configured block size.
func (c *Cache) BlockSize() int64 { return c.blockSize }

// ReadAt implements io.ReaderAt over the cache, so a Cache can back
// internal/binary.Reader directly. It never returns a short read without
// an error: p is always filled completely or an error is returned.
func (c *Cache) ReadAt(p []byte, off int64) (int, error) {
	data, err := c.Read(context.Background(), off, len(p))
	if err != nil {
		return 0, err
	}
	copy(p, data)
	return len(data), nil
}

// Read returns the bytes in [offset, offset+length) as a single contiguous
// slice, fetching and caching whichever blocks are not already resident.
// A contiguous run of missing blocks is filled by one driver.Read covering
// the whole run, not one driver.Read per block. The returned slice is
// always freshly allocated and safe for the caller to retain or mutate.
func (c *Cache) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	firstBlock := blockKey(offset / c.blockSize)
	lastBlock := blockKey((offset + int64(length) - 1) / c.blockSize)

	if err := c.fillRange(ctx, firstBlock, lastBlock); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	for b := firstBlock; b <= lastBlock; b++ {
		c.mu.Lock()
		e := c.blocks[b]
		c.mu.Unlock()

		blockStart := int64(b) * c.blockSize
		var blockData []byte
		if e != nil {
			blockData = e.data
		} else {
			// Evicted again before the copy (e.g. the budget is held by
			// pinned blocks): read this block straight from the driver.
			size, err := c.drv.Size(ctx)
			if err != nil {
				return nil, err
			}
			blockData, err = c.drv.Read(ctx, blockStart, int(min(blockStart+c.blockSize, size)-blockStart))
			if err != nil {
				return nil, err
			}
		}
		// Overlap of this block with [offset, offset+length)
		srcFrom := int64(0)
		if offset > blockStart {
			srcFrom = offset - blockStart
		}
		srcTo := c.blockSize
		if offset+int64(length) < blockStart+c.blockSize {
			srcTo = offset + int64(length) - blockStart
		}
		if srcTo > int64(len(blockData)) {
			srcTo = int64(len(blockData))
		}
		if srcFrom >= srcTo {
			continue
		}

		dstFrom := blockStart + srcFrom - offset
		copy(out[dstFrom:], blockData[srcFrom:srcTo])
	}

	return out, nil
}

// fillRange ensures every block in [firstBlock, lastBlock] is resident in
// the cache. Blocks already cached are moved to the front of the LRU;
// contiguous runs of missing blocks are coalesced into a single
// driver.Read per run, per spec's "M contiguous missing blocks results in
// one physical read covering that run" requirement.
func (c *Cache) fillRange(ctx context.Context, firstBlock, lastBlock blockKey) error {
	for b := firstBlock; b <= lastBlock; {
		c.mu.Lock()
		e, ok := c.blocks[b]
		if ok {
			if e.elem != nil {
				c.lru.MoveToFront(e.elem)
			}
			c.mu.Unlock()
			c.hit()
			b++
			continue
		}
		c.mu.Unlock()

		runEnd := b
		for runEnd+1 <= lastBlock {
			c.mu.Lock()
			_, present := c.blocks[runEnd+1]
			c.mu.Unlock()
			if present {
				break
			}
			runEnd++
		}

		if err := c.fetchRun(ctx, b, runEnd); err != nil {
			return err
		}
		b = runEnd + 1
	}
	return nil
}

// PinRead is like Read but additionally pins every block it touches until
// Release is called with the same offset/length. Pinned blocks are never
// evicted, which lets the dataset assembler hold a chunk's backing blocks
// live across a decode step without racing the evictor.
func (c *Cache) PinRead(ctx context.Context, offset int64, length int) ([]byte, error) {
	firstBlock := offset / c.blockSize
	lastBlock := (offset + int64(length) - 1) / c.blockSize

	pinned := make(map[blockKey]bool)
	c.mu.Lock()
	for b := firstBlock; b <= lastBlock; b++ {
		if e, ok := c.blocks[blockKey(b)]; ok {
			c.pinLocked(blockKey(b), e)
			pinned[blockKey(b)] = true
		}
	}
	c.mu.Unlock()

	data, err := c.Read(ctx, offset, length)
	if err != nil {
		c.Release(offset, length)
		return nil, err
	}

	// Pin the blocks the read itself brought in.
	c.mu.Lock()
	for b := firstBlock; b <= lastBlock; b++ {
		if e, ok := c.blocks[blockKey(b)]; ok && !pinned[blockKey(b)] {
			c.pinLocked(blockKey(b), e)
		}
	}
	c.mu.Unlock()
	return data, nil
}

// Release unpins the blocks covering [offset, offset+length), making them
// eligible for eviction again once their reference count reaches zero.
func (c *Cache) Release(offset int64, length int) {
	firstBlock := offset / c.blockSize
	lastBlock := (offset + int64(length) - 1) / c.blockSize

	c.mu.Lock()
	defer c.mu.Unlock()
	for b := firstBlock; b <= lastBlock; b++ {
		if e, ok := c.blocks[blockKey(b)]; ok {
			c.unpinLocked(blockKey(b), e)
		}
	}
}

func (c *Cache) pinLocked(key blockKey, e *entry) {
	if e.refs == 0 && e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	e.refs++
}

func (c *Cache) unpinLocked(key blockKey, e *entry) {
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 && !e.evicted && e.elem == nil {
		e.elem = c.lru.PushFront(key)
	}
}

// fetchRun fills every block in [firstBlock, lastBlock] through the
// driver, coalescing them into a single driver.Read. Concurrent calls for
// the exact same run are coalesced further into one fetch via
// singleflight.
func (c *Cache) fetchRun(ctx context.Context, firstBlock, lastBlock blockKey) error {
	for b := firstBlock; b <= lastBlock; b++ {
		c.miss()
	}
	c.inFlightInc()
	defer c.inFlightDec()

	_, err, _ := c.group.Do(runKey(firstBlock, lastBlock), func() (interface{}, error) {
		return nil, c.fetchRunBlocks(ctx, firstBlock, lastBlock)
	})
	return err
}

func (c *Cache) fetchRunBlocks(ctx context.Context, firstBlock, lastBlock blockKey) error {
	// Double-check: another goroutine may have populated the run while we
	// were waiting to be scheduled as the singleflight leader.
	c.mu.Lock()
	allPresent := true
	for b := firstBlock; b <= lastBlock; b++ {
		if _, ok := c.blocks[b]; !ok {
			allPresent = false
			break
		}
	}
	c.mu.Unlock()
	if allPresent {
		return nil
	}

	size, err := c.drv.Size(ctx)
	if err != nil {
		return err
	}

	start := int64(firstBlock) * c.blockSize
	if start >= size {
		return herrors.New(herrors.OutOfBounds, "block start past end of file").
			WithDetail("block", int64(firstBlock)).WithDetail("size", size)
	}

	end := int64(lastBlock+1) * c.blockSize
	if end > size {
		end = size
	}
	length := end - start

	data, err := c.drv.Read(ctx, start, int(length))
	if err != nil {
		return err
	}

	c.log.Debugw("cache miss run filled", "firstBlock", int64(firstBlock), "lastBlock", int64(lastBlock),
		"offset", start, "length", length)

	c.mu.Lock()
	for b := firstBlock; b <= lastBlock; b++ {
		blockStart := int64(b)*c.blockSize - start
		if blockStart >= int64(len(data)) {
			break // run extended past EOF in a way size already accounted for
		}
		blockEnd := blockStart + c.blockSize
		if blockEnd > int64(len(data)) {
			blockEnd = int64(len(data))
		}
		c.insertLocked(b, data[blockStart:blockEnd])
	}
	c.evictLocked()
	c.mu.Unlock()

	return nil
}

func (c *Cache) insertLocked(key blockKey, data []byte) {
	if _, exists := c.blocks[key]; exists {
		return
	}
	e := &entry{data: data}
	e.elem = c.lru.PushFront(key)
	c.blocks[key] = e
	c.used += int64(len(data))
}

// evictLocked drops LRU, unpinned blocks until usage is back under budget.
// Pinned blocks (refs > 0) are never in c.lru, so they are skipped
// automatically.
func (c *Cache) evictLocked() {
	for c.used > c.budget && c.lru.Len() > 0 {
		back := c.lru.Back()
		key := back.Value.(blockKey)
		e, ok := c.blocks[key]
		if !ok {
			c.lru.Remove(back)
			continue
		}

		c.lru.Remove(back)
		e.elem = nil
		e.evicted = true
		delete(c.blocks, key)
		c.used -= int64(len(e.data))
		c.evictionInc()
	}
}

func (c *Cache) hit() {
	if c.metrics != nil && c.metrics.Hits != nil {
		c.metrics.Hits.Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil && c.metrics.Misses != nil {
		c.metrics.Misses.Inc()
	}
}

func (c *Cache) evictionInc() {
	if c.metrics != nil && c.metrics.Evictions != nil {
		c.metrics.Evictions.Inc()
	}
}

func (c *Cache) inFlightInc() {
	if c.metrics != nil && c.metrics.InFlight != nil {
		c.metrics.InFlight.Inc()
	}
}

func (c *Cache) inFlightDec() {
	if c.metrics != nil && c.metrics.InFlight != nil {
		c.metrics.InFlight.Dec()
	}
}

func runKey(firstBlock, lastBlock blockKey) string {
	return strconv.FormatInt(int64(firstBlock), 10) + "-" + strconv.FormatInt(int64(lastBlock), 10)
}
