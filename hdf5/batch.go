package hdf5

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/h5coro-go/h5coro/internal/message"
)

// Request is one dataset read within a Batch: a path to resolve and an
// optional hyperslab. A nil Hyperslab means the whole dataset.
type Request struct {
	Path      string
	Hyperslab *Selection
}

// Result is the outcome of one Request. Err is set if path resolution or
// the read itself failed; in that case Data, Shape and Attrs are zero
// values and must not be used. A failed Result never aborts the rest of
// the batch.
type Result struct {
	Path     string
	Data     []byte
	Shape    []uint64
	Datatype message.DatatypeClass
	Attrs    map[string]interface{}
	Err      error
}

// Batch resolves every request's dataset path, then dispatches the reads
// concurrently across the file's worker pool, and blocks until all of
// them complete. The returned map is keyed by Request.Path; a request
// that fails is still present in the map, with Result.Err set, rather
// than failing the whole batch. Batch itself only returns a non-nil
// error for something outside any single request, such as ctx already
// being canceled.
func (f *File) Batch(ctx context.Context, requests []Request) (map[string]*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make(map[string]*Result, len(requests))
	datasets := make([]*Dataset, len(requests))

	// Resolving a path walks the group hierarchy, a cheap, serial
	// operation once the metadata memo is warm; only the chunk reads
	// that follow are worth parallelizing.
	for i, req := range requests {
		ds, err := f.OpenDataset(req.Path)
		if err != nil {
			results[req.Path] = &Result{Path: req.Path, Err: err}
			continue
		}
		datasets[i] = ds
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.workers)

	var mu sync.Mutex
	for i, req := range requests {
		ds := datasets[i]
		if ds == nil {
			continue // path resolution already failed above
		}
		req := req
		g.Go(func() error {
			res := f.readOne(gctx, ds, req)
			mu.Lock()
			results[req.Path] = res
			mu.Unlock()
			return nil
		})
	}

	// Every goroutine above returns nil, because readOne attaches each
	// failure to its own Result instead of propagating it, so g.Wait
	// returns nil.
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// readOne performs a single request's read and attribute harvest,
// converting any failure into a Result with Err set rather than an
// error return, so one bad dataset never sinks the rest of a Batch.
func (f *File) readOne(ctx context.Context, ds *Dataset, req Request) *Result {
	data, err := ds.ReadRawSelection(ctx, req.Hyperslab)
	if err != nil {
		return &Result{Path: req.Path, Err: err}
	}

	shape := ds.Shape()
	if req.Hyperslab != nil {
		shape = req.Hyperslab.Count
	}

	return &Result{
		Path:     req.Path,
		Data:     data,
		Shape:    shape,
		Datatype: ds.DtypeClass(),
		Attrs:    harvestAttrs(ds),
	}
}

func harvestAttrs(ds *Dataset) map[string]interface{} {
	names := ds.Attrs()
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		attr := ds.Attr(name)
		if attr == nil {
			continue
		}
		val, err := attr.Value()
		if err != nil {
			continue
		}
		out[name] = val
	}
	return out
}

// Handle is a deferred batch entry: the read it represents does not run
// until the first call to Result, and every subsequent call returns the
// same, already-computed Result.
type Handle struct {
	path   string
	once   sync.Once
	fetch  func() *Result
	result *Result
}

// Path returns the dataset path this handle was requested for.
func (h *Handle) Path() string {
	return h.path
}

// Result blocks until this handle's read has run, then returns it. The
// read itself only happens on the first call; later calls return the
// cached Result immediately.
func (h *Handle) Result() *Result {
	h.once.Do(func() {
		h.result = h.fetch()
	})
	return h.result
}

// BatchDeferred resolves every request's dataset path immediately (the
// same cheap, serial walk Batch does), but defers each individual read
// until its Handle.Result is first called. This lets a caller start
// consuming whichever datasets are ready without waiting on the slowest
// one in the batch, at the cost of giving up Batch's bounded-concurrency
// dispatch: each Handle issues its own read independently of the others.
func (f *File) BatchDeferred(ctx context.Context, requests []Request) []*Handle {
	handles := make([]*Handle, len(requests))
	for i, req := range requests {
		req := req
		ds, err := f.OpenDataset(req.Path)
		if err != nil {
			h := &Handle{path: req.Path}
			h.fetch = func() *Result { return &Result{Path: req.Path, Err: err} }
			handles[i] = h
			continue
		}

		h := &Handle{path: req.Path}
		h.fetch = func() *Result { return f.readOne(ctx, ds, req) }
		handles[i] = h
	}
	return handles
}
