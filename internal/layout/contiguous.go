package layout

import (
	"fmt"

	"github.com/h5coro-go/h5coro/internal/binary"
	"github.com/h5coro-go/h5coro/internal/message"
)

// Contiguous represents contiguous storage layout.
// Data is stored in a single contiguous block in the file.
type Contiguous struct {
	address   uint64
	size      uint64
	dataspace *message.Dataspace
	datatype  *message.Datatype
	reader    *binary.Reader
}

// NewContiguous creates a new contiguous layout handler.
func NewContiguous(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	reader *binary.Reader,
) *Contiguous {
	size := layout.Size
	if size == 0 {
		// Calculate size from dataspace and datatype
		size = calculateDataSize(dataspace, datatype)
	}

	return &Contiguous{
		address:   layout.Address,
		size:      size,
		dataspace: dataspace,
		datatype:  datatype,
		reader:    reader,
	}
}

func (c *Contiguous) Class() message.LayoutClass {
	return message.LayoutContiguous
}

// Read reads all data from contiguous storage.
func (c *Contiguous) Read() ([]byte, error) {
	// Check for undefined address (no data allocated)
	if c.reader.IsUndefinedOffset(c.address) {
		return nil, fmt.Errorf("contiguous data not allocated")
	}

	if c.size == 0 {
		return []byte{}, nil
	}

	// Read data directly from the file
	r := c.reader.At(int64(c.address))
	data, err := r.ReadBytes(int(c.size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data: %w", err)
	}

	return data, nil
}

// ReadRange reads the byte sub-range [offset, offset+length) of the
// contiguous data, without touching the rest of it. offset is relative to
// the start of the contiguous block, not the file. Used by hyperslab
// selection reads to fetch only the bytes a selection needs instead of the
// whole dataset; the underlying binary.Reader is cache-backed, so this
// still benefits from block-granularity coalescing across nearby calls.
func (c *Contiguous) ReadRange(offset, length uint64) ([]byte, error) {
	if c.reader.IsUndefinedOffset(c.address) {
		return nil, fmt.Errorf("contiguous data not allocated")
	}
	if length == 0 {
		return []byte{}, nil
	}
	if offset+length > c.size {
		return nil, fmt.Errorf("range [%d, %d) exceeds contiguous data size %d", offset, offset+length, c.size)
	}

	r := c.reader.At(int64(c.address) + int64(offset))
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous range: %w", err)
	}
	return data, nil
}

// Address returns the data address.
func (c *Contiguous) Address() uint64 {
	return c.address
}

// Size returns the data size in bytes.
func (c *Contiguous) Size() uint64 {
	return c.size
}
