// Package assembler implements the concurrent, hyperslab-aware dataset
// read path: given a chunked layout and a selection, it fetches only the
// chunks that intersect the selection through a block cache, decodes each
// one's filter pipeline, and places the result into an output buffer — all
// in parallel, bounded by a worker pool.
package assembler

import (
	"context"

	"github.com/h5coro-go/h5coro/internal/btree"
	"github.com/h5coro-go/h5coro/internal/cache"
	"github.com/h5coro-go/h5coro/internal/herrors"
	"github.com/h5coro-go/h5coro/internal/layout"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Selection describes an axis-aligned hyperslab: Start[i] is the first
// index read along dimension i, Count[i] is how many elements along that
// dimension to read, and Stride[i] is the step between consecutive
// elements read along dimension i. Stride may be nil, or shorter than the
// dataset's rank is never allowed once non-nil: a present Stride must cover
// every dimension, with an entry of 0 or 1 meaning "contiguous" for that
// dimension. A nil Selection means "the whole dataset".
//
// H5Sselect_hyperslab's block parameter (reading a block of more than one
// element at each strided position) is not modeled — every strided
// position contributes exactly one element.
type Selection struct {
	Start  []uint64
	Count  []uint64
	Stride []uint64
}

// strides returns the effective per-dimension stride for this selection,
// defaulting an absent or zero entry to 1 (contiguous).
func (s *Selection) strides(ndims int) []uint64 {
	out := make([]uint64, ndims)
	for d := 0; d < ndims; d++ {
		if d < len(s.Stride) && s.Stride[d] > 1 {
			out[d] = s.Stride[d]
		} else {
			out[d] = 1
		}
	}
	return out
}

// DefaultWorkers returns the default worker pool size: 4 per CPU.
func DefaultWorkers(numCPU int) int {
	if numCPU <= 0 {
		numCPU = 1
	}
	return 4 * numCPU
}

// Assembler reads chunked dataset data through a Cache with a bounded
// number of chunks in flight at once.
type Assembler struct {
	layout  *layout.Chunked
	cache   *cache.Cache
	workers int
	log     *zap.SugaredLogger
}

// Config configures an Assembler.
type Config struct {
	Layout  *layout.Chunked
	Cache   *cache.Cache
	Workers int // defaults to 16 if <= 0
	Logger  *zap.SugaredLogger
}

// New builds an Assembler.
func New(cfg Config) *Assembler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 16
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Assembler{layout: cfg.Layout, cache: cfg.Cache, workers: workers, log: log}
}

// Read fetches, decodes and places every chunk intersecting sel, and
// returns the result as a dense row-major buffer sized to sel.Count (or to
// the full dataset if sel is nil).
func (a *Assembler) Read(ctx context.Context, sel *Selection) ([]byte, error) {
	dims := a.layout.Dims()
	if sel == nil {
		sel = fullSelection(dims)
	}
	if err := validateSelection(sel, dims); err != nil {
		return nil, err
	}

	entries, err := a.layout.Entries()
	if err != nil {
		return nil, err
	}

	matched := selectEntries(entries, a.layout.ChunkShape(), sel)

	elementSize := a.layout.ElementSize()
	outSize := elementSize
	for _, c := range sel.Count {
		outSize *= c
	}
	// Pre-fill with the dataset's declared fill value (or leave zero-filled
	// if it has none) so hyperslab positions no chunk covers read back as
	// fill rather than whatever garbage make() would otherwise leave unset.
	output := make([]byte, outSize)
	layout.FillBuffer(output, a.layout.FillBytes())

	fullDims := dims
	pipeline := a.layout.Pipeline()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, entry := range matched {
		entry := entry
		g.Go(func() error {
			raw, err := a.cache.Read(gctx, int64(entry.Address), int(entry.Size))
			if err != nil {
				return herrors.Wrap(herrors.IOError, err, "fetching chunk").
					WithDetail("address", entry.Address).WithDetail("size", entry.Size)
			}

			if pipeline != nil && !pipeline.Empty() {
				raw, err = pipeline.Decode(raw, entry.FilterMask)
				if err != nil {
					return herrors.Wrap(herrors.FormatError, err, "decoding chunk filter pipeline").
						WithDetail("offset", entry.Offset)
				}
			}

			a.log.Debugw("chunk fetched", "address", entry.Address, "size", entry.Size, "offset", entry.Offset)
			return placeChunkInSelection(output, raw, entry, sel, fullDims, a.layout.ChunkShape(), elementSize)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return output, nil
}

func fullSelection(dims []uint64) *Selection {
	start := make([]uint64, len(dims))
	return &Selection{Start: start, Count: dims}
}

func validateSelection(sel *Selection, dims []uint64) error {
	if len(sel.Start) != len(dims) || len(sel.Count) != len(dims) {
		return herrors.New(herrors.FormatError, "selection rank mismatch").
			WithDetail("selectionRank", len(sel.Count)).WithDetail("datasetRank", len(dims))
	}
	if len(sel.Stride) != 0 && len(sel.Stride) != len(dims) {
		return herrors.New(herrors.FormatError, "selection stride rank mismatch").
			WithDetail("strideRank", len(sel.Stride)).WithDetail("datasetRank", len(dims))
	}

	strides := sel.strides(len(dims))
	for i, d := range dims {
		if sel.Count[i] == 0 {
			continue
		}
		last := sel.Start[i] + (sel.Count[i]-1)*strides[i]
		if last >= d {
			return herrors.New(herrors.OutOfBounds, "hyperslab extends past dataspace extent").
				WithDetail("dim", i).WithDetail("start", sel.Start[i]).
				WithDetail("count", sel.Count[i]).WithDetail("stride", strides[i]).WithDetail("extent", d)
		}
	}
	return nil
}

// selectEntries returns the chunk entries whose bounding box intersects
// the requested selection.
func selectEntries(entries []btree.ChunkEntry, chunkShape []uint32, sel *Selection) []btree.ChunkEntry {
	var matched []btree.ChunkEntry
	for _, e := range entries {
		if chunkIntersectsSelection(e.Offset, chunkShape, sel) {
			matched = append(matched, e)
		}
	}
	return matched
}

func chunkIntersectsSelection(chunkOffset []uint64, chunkShape []uint32, sel *Selection) bool {
	strides := sel.strides(len(chunkOffset))
	for d := range chunkOffset {
		chunkStart := chunkOffset[d]
		chunkEnd := chunkStart + uint64(chunkShape[d])
		if _, _, ok := strideOverlap(sel.Start[d], sel.Count[d], strides[d], chunkStart, chunkEnd); !ok {
			return false
		}
	}
	return true
}

// strideOverlap returns the inclusive range [lo, hi] of selection indices i
// in [0, count) for which start+i*stride falls in [chunkStart, chunkEnd).
// Since start+i*stride is monotonically increasing in i, the indices that
// satisfy this always form a contiguous range. ok is false when no index
// of this selection falls in the chunk's range on this axis.
func strideOverlap(start, count, stride, chunkStart, chunkEnd uint64) (lo, hi uint64, ok bool) {
	if count == 0 || chunkEnd == 0 || chunkEnd-1 < start {
		return 0, 0, false
	}

	if chunkStart > start {
		diff := chunkStart - start
		lo = diff / stride
		if lo*stride < diff {
			lo++
		}
	}

	hi = (chunkEnd - 1 - start) / stride
	if hi >= count {
		hi = count - 1
	}

	if lo >= count || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// placeChunkInSelection copies the portion of a decoded chunk that falls
// inside sel into output, which is sized to sel.Count (row-major).
func placeChunkInSelection(
	output []byte,
	chunkData []byte,
	entry btree.ChunkEntry,
	sel *Selection,
	fullDims []uint64,
	chunkShape []uint32,
	elementSize uint64,
) error {
	ndims := len(fullDims)
	strides := sel.strides(ndims)

	// Compute, per dimension, the range of selection indices i in
	// [0, Count[d]) whose absolute position Start[d]+i*Stride[d] falls
	// inside this chunk.
	iStart := make([]uint64, ndims)
	iCount := make([]uint64, ndims)
	for d := 0; d < ndims; d++ {
		chunkStart := entry.Offset[d]
		chunkEnd := chunkStart + uint64(chunkShape[d])

		lo, hi, ok := strideOverlap(sel.Start[d], sel.Count[d], strides[d], chunkStart, chunkEnd)
		if !ok {
			return nil // no overlap on this axis; nothing to place
		}
		iStart[d] = lo
		iCount[d] = hi - lo + 1
	}

	outStrides := make([]uint64, ndims)
	outStrides[ndims-1] = elementSize
	for d := ndims - 2; d >= 0; d-- {
		outStrides[d] = outStrides[d+1] * sel.Count[d+1]
	}

	chunkStrides := make([]uint64, ndims)
	chunkStrides[ndims-1] = elementSize
	for d := ndims - 2; d >= 0; d-- {
		chunkStrides[d] = chunkStrides[d+1] * uint64(chunkShape[d+1])
	}

	return copyRegionRecursive(
		output, chunkData,
		entry.Offset, sel.Start, strides, iStart, iCount,
		outStrides, chunkStrides,
		0, 0, 0, ndims,
	)
}

func copyRegionRecursive(
	output, chunkData []byte,
	chunkOffset, selStart, strides, iStart, iCount []uint64,
	outStrides, chunkStrides []uint64,
	outIdx, chunkIdx uint64,
	dim, ndims int,
) error {
	if dim == ndims-1 {
		// Contiguous along this axis: one bulk copy for the whole run.
		if strides[dim] == 1 {
			rowBytes := iCount[dim] * outStrides[dim]
			outStart := outIdx + iStart[dim]*outStrides[dim]
			absolute := selStart[dim] + iStart[dim]*strides[dim]
			chunkStart := chunkIdx + (absolute-chunkOffset[dim])*chunkStrides[dim]
			if outStart+rowBytes > uint64(len(output)) || chunkStart+rowBytes > uint64(len(chunkData)) {
				return herrors.New(herrors.OutOfBounds, "chunk placement exceeds buffer bounds")
			}
			copy(output[outStart:outStart+rowBytes], chunkData[chunkStart:chunkStart+rowBytes])
			return nil
		}

		// Strided along this axis: each selected position lands at a
		// non-adjacent byte offset, so copy one element at a time.
		elemBytes := outStrides[dim]
		for i := iStart[dim]; i < iStart[dim]+iCount[dim]; i++ {
			absolute := selStart[dim] + i*strides[dim]
			outPos := outIdx + i*outStrides[dim]
			chunkPos := chunkIdx + (absolute-chunkOffset[dim])*chunkStrides[dim]
			if outPos+elemBytes > uint64(len(output)) || chunkPos+elemBytes > uint64(len(chunkData)) {
				return herrors.New(herrors.OutOfBounds, "chunk placement exceeds buffer bounds")
			}
			copy(output[outPos:outPos+elemBytes], chunkData[chunkPos:chunkPos+elemBytes])
		}
		return nil
	}

	for i := iStart[dim]; i < iStart[dim]+iCount[dim]; i++ {
		absolute := selStart[dim] + i*strides[dim]
		newOutIdx := outIdx + i*outStrides[dim]
		newChunkIdx := chunkIdx + (absolute-chunkOffset[dim])*chunkStrides[dim]
		if err := copyRegionRecursive(
			output, chunkData,
			chunkOffset, selStart, strides, iStart, iCount,
			outStrides, chunkStrides,
			newOutIdx, newChunkIdx,
			dim+1, ndims,
		); err != nil {
			return err
		}
	}
	return nil
}
