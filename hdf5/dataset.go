package hdf5

import (
	"context"
	"fmt"
	"path"
	"reflect"

	"github.com/h5coro-go/h5coro/internal/assembler"
	"github.com/h5coro-go/h5coro/internal/dtype"
	"github.com/h5coro-go/h5coro/internal/herrors"
	"github.com/h5coro-go/h5coro/internal/layout"
	"github.com/h5coro-go/h5coro/internal/message"
	"github.com/h5coro-go/h5coro/internal/object"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    layout.Layout
}

// newDataset creates a Dataset from an object header.
func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:   f,
		path:   path,
		header: header,
	}

	// Get dataspace
	ds.dataspace = header.Dataspace()
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset missing dataspace message")
	}

	// Get datatype
	ds.datatype = header.Datatype()
	if ds.datatype == nil {
		return nil, fmt.Errorf("dataset missing datatype message")
	}

	// Get layout
	layoutMsg := header.DataLayout()
	if layoutMsg == nil {
		return nil, fmt.Errorf("dataset missing layout message")
	}

	// Create layout handler
	filterMsg := header.FilterPipeline()
	fillMsg := header.FillValue()
	var err error
	ds.layout, err = layout.New(layoutMsg, ds.dataspace, ds.datatype, filterMsg, fillMsg, f.reader)
	if err != nil {
		return nil, fmt.Errorf("creating layout: %w", err)
	}

	return ds, nil
}

// Name returns the dataset name (last component of path).
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the full path to this dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Shape returns the dimensions of the dataset.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// Dims is an alias for Shape.
func (d *Dataset) Dims() []uint64 {
	return d.Shape()
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank
}

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// IsScalar returns true if the dataset is a scalar (single value).
func (d *Dataset) IsScalar() bool {
	return d.dataspace.IsScalar()
}

// DtypeSize returns the size of each element in bytes.
func (d *Dataset) DtypeSize() int {
	return int(d.datatype.Size)
}

// DtypeClass returns the datatype class.
func (d *Dataset) DtypeClass() message.DatatypeClass {
	return d.datatype.Class
}

// GoType returns the Go type that corresponds to this dataset's datatype.
func (d *Dataset) GoType() (reflect.Type, error) {
	return dtype.GoType(d.datatype)
}

// Read reads all data from the dataset into dest.
// dest should be a pointer to a slice of the appropriate type.
func (d *Dataset) Read(dest interface{}) error {
	// Read raw data
	raw, err := d.layout.Read()
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}

	// Convert to Go types
	numElements := d.dataspace.NumElements()
	return dtype.Convert(d.datatype, raw, numElements, dest)
}

// ReadRaw reads all data from the dataset as raw bytes.
func (d *Dataset) ReadRaw() ([]byte, error) {
	return d.layout.Read()
}

// Selection is an axis-aligned hyperslab: Start[i] is the first index read
// along dimension i, Count[i] is how many elements along that dimension to
// read, and Stride[i] (default 1) is the step between them.
type Selection = assembler.Selection

// ReadRawSelection reads a hyperslab of the dataset as raw, undecoded bytes
// in row-major order. For chunked datasets this fetches only the chunks
// the selection intersects, concurrently, through the file's block cache.
// For contiguous datasets it reads only the byte sub-range the selection
// spans (or gathers element-by-element if strided). Compact datasets have
// no range to sub-select — their data already lives in the object header —
// so they always read whole.
func (d *Dataset) ReadRawSelection(ctx context.Context, sel *Selection) ([]byte, error) {
	chunked, ok := d.layout.(*layout.Chunked)
	if !ok {
		return d.readSelectionFallback(sel)
	}

	asm := d.file.newAssembler(chunked)
	return asm.Read(ctx, sel)
}

// ReadSelection is like ReadRawSelection but converts the result into dest,
// a pointer to a slice of the appropriate Go type, the same way Read does.
func (d *Dataset) ReadSelection(ctx context.Context, sel *Selection, dest interface{}) error {
	raw, err := d.ReadRawSelection(ctx, sel)
	if err != nil {
		return err
	}

	numElements := d.NumElements()
	if sel != nil {
		numElements = 1
		for _, c := range sel.Count {
			numElements *= c
		}
	}
	return dtype.Convert(d.datatype, raw, numElements, dest)
}

// readSelectionFallback serves a selection read for layouts with no chunk
// index (compact, contiguous). Contiguous storage is a single file range,
// so a non-strided hyperslab is served by computing the byte sub-range the
// selection spans and reading only that (spec's "compute sub-range for
// contiguous hyperslabs"); a strided hyperslab falls back to gathering one
// element at a time, since selected elements land at non-adjacent offsets.
// Compact storage has no range to sub-select — it's already in the object
// header — so it always reads its (small, in-memory) data whole.
func (d *Dataset) readSelectionFallback(sel *Selection) ([]byte, error) {
	if sel == nil {
		return d.layout.Read()
	}
	dims := d.Shape()
	if len(sel.Start) != len(dims) || len(sel.Count) != len(dims) {
		return nil, herrors.New(herrors.FormatError, "selection rank mismatch").
			WithDetail("selectionRank", len(sel.Count)).WithDetail("datasetRank", len(dims))
	}
	if len(sel.Stride) != 0 && len(sel.Stride) != len(dims) {
		return nil, herrors.New(herrors.FormatError, "selection stride rank mismatch").
			WithDetail("strideRank", len(sel.Stride)).WithDetail("datasetRank", len(dims))
	}

	ndims := len(dims)
	strides := make([]uint64, ndims)
	strided := false
	for dim := 0; dim < ndims; dim++ {
		if dim < len(sel.Stride) && sel.Stride[dim] > 1 {
			strides[dim] = sel.Stride[dim]
			strided = true
		} else {
			strides[dim] = 1
		}
	}
	for i, extent := range dims {
		if sel.Count[i] == 0 {
			continue
		}
		last := sel.Start[i] + (sel.Count[i]-1)*strides[i]
		if last >= extent {
			return nil, herrors.New(herrors.OutOfBounds, "hyperslab extends past dataspace extent").
				WithDetail("dim", i)
		}
	}

	elementSize := uint64(d.DtypeSize())

	fullStrides := make([]uint64, ndims)
	if ndims > 0 {
		fullStrides[ndims-1] = elementSize
		for i := ndims - 2; i >= 0; i-- {
			fullStrides[i] = fullStrides[i+1] * dims[i+1]
		}
	}

	outStrides := make([]uint64, ndims)
	if ndims > 0 {
		outStrides[ndims-1] = elementSize
		for i := ndims - 2; i >= 0; i-- {
			outStrides[i] = outStrides[i+1] * sel.Count[i+1]
		}
	}

	outSize := elementSize
	for _, c := range sel.Count {
		outSize *= c
	}
	out := make([]byte, outSize)

	if contiguous, ok := d.layout.(*layout.Contiguous); ok {
		if strided {
			err := gatherElementsRecursive(contiguous, out, sel.Start, sel.Count, strides, fullStrides, outStrides, elementSize, 0, 0, 0, ndims)
			return out, err
		}
		return readContiguousSubrange(contiguous, out, sel.Start, sel.Count, fullStrides, outStrides, elementSize, ndims)
	}

	full, err := d.layout.Read()
	if err != nil {
		return nil, err
	}
	copyHyperslabRecursive(out, full, sel.Start, sel.Count, outStrides, fullStrides, 0, 0, 0, ndims)
	return out, nil
}

// readContiguousSubrange reads the single byte range spanning the first
// selected element through the last, then copies the selected elements out
// of that range — a much smaller read than the whole dataset whenever the
// selection covers only part of it.
func readContiguousSubrange(
	c *layout.Contiguous,
	out []byte,
	start, count, fullStrides, outStrides []uint64,
	elementSize uint64,
	ndims int,
) ([]byte, error) {
	if ndims == 0 {
		data, err := c.ReadRange(0, elementSize)
		if err != nil {
			return nil, err
		}
		copy(out, data)
		return out, nil
	}

	minOffset := uint64(0)
	lastOffset := uint64(0)
	for dim := 0; dim < ndims; dim++ {
		minOffset += start[dim] * fullStrides[dim]
		lastOffset += (start[dim] + count[dim] - 1) * fullStrides[dim]
	}

	rangeBuf, err := c.ReadRange(minOffset, lastOffset+elementSize-minOffset)
	if err != nil {
		return nil, err
	}

	copyHyperslabFromRange(out, rangeBuf, start, count, outStrides, fullStrides, minOffset, 0, 0, 0, ndims)
	return out, nil
}

// copyHyperslabFromRange is copyHyperslabRecursive's counterpart for a
// buffer that starts at base (a dataset byte offset) rather than at 0.
func copyHyperslabFromRange(out, rangeBuf []byte, start, count, outStrides, fullStrides []uint64, base, outIdx, fullIdx uint64, dim, ndims int) {
	if dim == ndims-1 {
		rowBytes := count[dim] * outStrides[dim]
		rangeStart := fullIdx + start[dim]*fullStrides[dim] - base
		copy(out[outIdx:outIdx+rowBytes], rangeBuf[rangeStart:rangeStart+rowBytes])
		return
	}
	for i := uint64(0); i < count[dim]; i++ {
		newOutIdx := outIdx + i*outStrides[dim]
		newFullIdx := fullIdx + (start[dim]+i)*fullStrides[dim]
		copyHyperslabFromRange(out, rangeBuf, start, count, outStrides, fullStrides, base, newOutIdx, newFullIdx, dim+1, ndims)
	}
}

// gatherElementsRecursive reads one element at a time from contiguous
// storage at its exact strided offset. This is the fallback path for
// strided selections: consecutive selected elements aren't adjacent in the
// file, so there's no single sub-range to read.
func gatherElementsRecursive(
	c *layout.Contiguous,
	out []byte,
	start, count, strides, fullStrides, outStrides []uint64,
	elementSize uint64,
	outIdx, absOffset uint64,
	dim, ndims int,
) error {
	if ndims == 0 {
		data, err := c.ReadRange(0, elementSize)
		if err != nil {
			return err
		}
		copy(out, data)
		return nil
	}
	if dim == ndims-1 {
		for i := uint64(0); i < count[dim]; i++ {
			elemOffset := absOffset + (start[dim]+i*strides[dim])*fullStrides[dim]
			data, err := c.ReadRange(elemOffset, elementSize)
			if err != nil {
				return err
			}
			dst := outIdx + i*outStrides[dim]
			copy(out[dst:dst+elementSize], data)
		}
		return nil
	}
	for i := uint64(0); i < count[dim]; i++ {
		newOutIdx := outIdx + i*outStrides[dim]
		newAbsOffset := absOffset + (start[dim]+i*strides[dim])*fullStrides[dim]
		if err := gatherElementsRecursive(c, out, start, count, strides, fullStrides, outStrides, elementSize, newOutIdx, newAbsOffset, dim+1, ndims); err != nil {
			return err
		}
	}
	return nil
}

func copyHyperslabRecursive(out, full []byte, start, count, outStrides, fullStrides []uint64, outIdx, fullIdx uint64, dim, ndims int) {
	if ndims == 0 {
		copy(out, full)
		return
	}
	if dim == ndims-1 {
		rowBytes := count[dim] * outStrides[dim]
		fullStart := fullIdx + start[dim]*fullStrides[dim]
		copy(out[outIdx:outIdx+rowBytes], full[fullStart:fullStart+rowBytes])
		return
	}
	for i := uint64(0); i < count[dim]; i++ {
		newOutIdx := outIdx + i*outStrides[dim]
		newFullIdx := fullIdx + (start[dim]+i)*fullStrides[dim]
		copyHyperslabRecursive(out, full, start, count, outStrides, fullStrides, newOutIdx, newFullIdx, dim+1, ndims)
	}
}

// ReadFloat64 reads the dataset as float64 values.
func (d *Dataset) ReadFloat64() ([]float64, error) {
	var result []float64
	err := d.Read(&result)
	return result, err
}

// ReadFloat32 reads the dataset as float32 values.
func (d *Dataset) ReadFloat32() ([]float32, error) {
	var result []float32
	err := d.Read(&result)
	return result, err
}

// ReadInt64 reads the dataset as int64 values.
func (d *Dataset) ReadInt64() ([]int64, error) {
	var result []int64
	err := d.Read(&result)
	return result, err
}

// ReadInt32 reads the dataset as int32 values.
func (d *Dataset) ReadInt32() ([]int32, error) {
	var result []int32
	err := d.Read(&result)
	return result, err
}

// ReadString reads the dataset as string values.
func (d *Dataset) ReadString() ([]string, error) {
	var result []string
	err := d.Read(&result)
	return result, err
}

// ReadInt8 reads the dataset as int8 values.
func (d *Dataset) ReadInt8() ([]int8, error) {
	var result []int8
	err := d.Read(&result)
	return result, err
}

// ReadInt16 reads the dataset as int16 values.
func (d *Dataset) ReadInt16() ([]int16, error) {
	var result []int16
	err := d.Read(&result)
	return result, err
}

// ReadUint8 reads the dataset as uint8 values.
func (d *Dataset) ReadUint8() ([]uint8, error) {
	var result []uint8
	err := d.Read(&result)
	return result, err
}

// ReadUint16 reads the dataset as uint16 values.
func (d *Dataset) ReadUint16() ([]uint16, error) {
	var result []uint16
	err := d.Read(&result)
	return result, err
}

// ReadUint32 reads the dataset as uint32 values.
func (d *Dataset) ReadUint32() ([]uint32, error) {
	var result []uint32
	err := d.Read(&result)
	return result, err
}

// ReadUint64 reads the dataset as uint64 values.
func (d *Dataset) ReadUint64() ([]uint64, error) {
	var result []uint64
	err := d.Read(&result)
	return result, err
}

// Attrs returns the attribute names for this dataset.
func (d *Dataset) Attrs() []string {
	var names []string
	for _, msg := range d.header.GetMessages(message.TypeAttribute) {
		attr := msg.(*message.Attribute)
		names = append(names, attr.Name)
	}
	return names
}

// Attr returns an attribute by name, or nil if not found.
func (d *Dataset) Attr(name string) *Attribute {
	for _, msg := range d.header.GetMessages(message.TypeAttribute) {
		attr := msg.(*message.Attribute)
		if attr.Name == name {
			return &Attribute{msg: attr, reader: d.file.reader}
		}
	}
	return nil
}

// HasAttr returns true if the dataset has an attribute with the given name.
func (d *Dataset) HasAttr(name string) bool {
	return d.Attr(name) != nil
}
