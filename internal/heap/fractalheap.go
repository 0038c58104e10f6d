package heap

import (
	stdbinary "encoding/binary"
	"fmt"

	"github.com/h5coro-go/h5coro/internal/binary"
)

// FractalHeap is a read-only view of an HDF5 fractal heap (signature
// "FRHP"), the managed-object store new-style groups use to hold their
// link messages instead of a symbol table.
//
// Only the direct-block case is supported: a heap whose root is itself a
// direct block (CurrentRowCount == 0). Indirect blocks, huge objects
// (stored outside the heap, referenced by a v2 B-tree) and the tiny-object
// fast path's edge cases beyond simple inline storage are not implemented;
// GetObject reports an unsupported-format error for anything that needs
// them rather than misreading the object.
type FractalHeap struct {
	reader       *binary.Reader
	headerAddr   uint64
	heapOffSize  uint8
	heapLenSize  uint8
	maxObjSize   uint32
	startBlkSize uint64
	rootAddr     uint64
	rootRows     uint16
	checksummed  bool
}

const fractalHeapSignature = "FRHP"
const directBlockSignature = "FHDB"

// ReadFractalHeap parses the fractal heap header at address.
func ReadFractalHeap(r *binary.Reader, address uint64) (*FractalHeap, error) {
	hr := r.At(int64(address))

	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading fractal heap signature: %w", err)
	}
	if string(sig) != fractalHeapSignature {
		return nil, fmt.Errorf("invalid fractal heap signature: got %q, expected %q", sig, fractalHeapSignature)
	}

	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported fractal heap version: %d", version)
	}

	if _, err := hr.ReadUint16(); err != nil { // Heap ID length
		return nil, err
	}
	ioFiltersLen, err := hr.ReadUint16() // I/O filters encoded length
	if err != nil {
		return nil, err
	}

	flags, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	checksummed := flags&0x02 != 0

	maxObjSize, err := hr.ReadUint32()
	if err != nil {
		return nil, err
	}

	if _, err := hr.ReadLength(); err != nil { // Next huge object ID
		return nil, err
	}
	if _, err := hr.ReadOffset(); err != nil { // Huge object v2 B-tree address
		return nil, err
	}
	if _, err := hr.ReadLength(); err != nil { // Free space amount
		return nil, err
	}
	if _, err := hr.ReadOffset(); err != nil { // Free space section address
		return nil, err
	}

	// Managed/huge/tiny object statistics: 4 + 2 + 2 length-sized fields.
	for i := 0; i < 8; i++ {
		if _, err := hr.ReadLength(); err != nil {
			return nil, fmt.Errorf("reading fractal heap statistics: %w", err)
		}
	}

	if _, err := hr.ReadUint16(); err != nil { // Doubling table width
		return nil, err
	}
	startBlkSize, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	maxDirectBlockSize, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	maxHeapSize, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	if _, err := hr.ReadUint16(); err != nil { // Starting # of rows in root indirect block
		return nil, err
	}
	rootAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	currentRows, err := hr.ReadUint16() // Current # of rows
	if err != nil {
		return nil, err
	}

	if ioFiltersLen != 0 {
		return nil, fmt.Errorf("fractal heap I/O filters are not supported")
	}

	// The heap length field's width is the smaller of what the maximum
	// direct block size and the maximum managed object size need to encode.
	lenSize := byteWidthForValue(maxDirectBlockSize)
	if w := byteWidthForValue(uint64(maxObjSize)); w < lenSize {
		lenSize = w
	}

	return &FractalHeap{
		reader:       r,
		headerAddr:   address,
		heapOffSize:  byteWidth(maxHeapSize),
		heapLenSize:  lenSize,
		maxObjSize:   maxObjSize,
		startBlkSize: startBlkSize,
		rootAddr:     rootAddr,
		rootRows:     currentRows,
		checksummed:  checksummed,
	}, nil
}

// byteWidth returns ceil(bits/8), used for the offset size implied by the
// heap's log2 maximum size.
func byteWidth(bits uint16) uint8 {
	return uint8((bits + 7) / 8)
}

// byteWidthForValue returns the minimum number of bytes needed to hold
// value, mirroring how the format derives the heap length-field width from
// the maximum managed-object size.
func byteWidthForValue(value uint64) uint8 {
	n := uint8(1)
	for value >= 1<<(8*n) && n < 8 {
		n++
	}
	return n
}

// heapIDType is the object kind encoded in a heap ID's flag byte.
type heapIDType uint8

const (
	heapIDManaged heapIDType = 0x00
	heapIDHuge    heapIDType = 0x10
	heapIDTiny    heapIDType = 0x20
)

// GetObject resolves a heap ID to its underlying bytes.
func (fh *FractalHeap) GetObject(heapID []byte) ([]byte, error) {
	if len(heapID) < 1 {
		return nil, fmt.Errorf("fractal heap ID too short: %d bytes", len(heapID))
	}

	flags := heapID[0]
	version := (flags & 0xC0) >> 6
	if version != 0 {
		return nil, fmt.Errorf("unsupported fractal heap ID version: %d", version)
	}

	switch heapIDType(flags & 0x30) {
	case heapIDManaged:
		return fh.readManagedObject(heapID[1:])
	case heapIDTiny:
		return heapID[1:], nil
	default:
		return nil, fmt.Errorf("fractal heap huge objects are not supported")
	}
}

func (fh *FractalHeap) readManagedObject(rest []byte) ([]byte, error) {
	if fh.rootRows != 0 {
		return nil, fmt.Errorf("fractal heaps with indirect blocks are not supported (root has %d rows)", fh.rootRows)
	}

	offSize, lenSize := int(fh.heapOffSize), int(fh.heapLenSize)
	if len(rest) < offSize+lenSize {
		return nil, fmt.Errorf("fractal heap managed ID too short: %d bytes (need %d)", len(rest), offSize+lenSize)
	}

	order := fh.reader.ByteOrder()
	offset := decodeUint(rest[:offSize], order)
	length := decodeUint(rest[offSize:offSize+lenSize], order)

	block, err := fh.readDirectBlock(fh.rootAddr, fh.startBlkSize)
	if err != nil {
		return nil, fmt.Errorf("reading fractal heap direct block: %w", err)
	}

	if offset < block.blockOffset {
		return nil, fmt.Errorf("fractal heap object offset 0x%x precedes block offset 0x%x", offset, block.blockOffset)
	}
	rel := offset - block.blockOffset
	if rel+length > uint64(len(block.data)) {
		return nil, fmt.Errorf("fractal heap object (offset 0x%x, length %d) exceeds block data (%d bytes)",
			rel, length, len(block.data))
	}

	out := make([]byte, length)
	copy(out, block.data[rel:rel+length])
	return out, nil
}

type directBlock struct {
	blockOffset uint64
	data        []byte
}

func (fh *FractalHeap) readDirectBlock(address, size uint64) (*directBlock, error) {
	hr := fh.reader.At(int64(address))

	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading direct block signature: %w", err)
	}
	if string(sig) != directBlockSignature {
		return nil, fmt.Errorf("invalid direct block signature: got %q, expected %q", sig, directBlockSignature)
	}

	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported direct block version: %d", version)
	}

	heapHeaderAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if heapHeaderAddr != fh.headerAddr {
		return nil, fmt.Errorf("direct block heap header mismatch: 0x%x (expected 0x%x)", heapHeaderAddr, fh.headerAddr)
	}

	blockOffset, err := hr.ReadUintN(int(fh.heapOffSize))
	if err != nil {
		return nil, err
	}

	headerEnd := hr.Pos()
	dataSize := int64(size) - (headerEnd - int64(address))
	if fh.checksummed {
		dataSize -= 4 // trailing checksum, unverified
	}
	if dataSize < 0 {
		return nil, fmt.Errorf("direct block size %d too small for its header", size)
	}

	data, err := hr.ReadBytes(int(dataSize))
	if err != nil {
		return nil, fmt.Errorf("reading direct block data: %w", err)
	}

	return &directBlock{blockOffset: blockOffset, data: data}, nil
}

// decodeUint decodes a variable-width unsigned integer, mirroring
// binary.Reader's own decodeUint: standard widths respect the file's byte
// order, other widths fall back to little-endian.
func decodeUint(b []byte, order stdbinary.ByteOrder) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	default:
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = (v << 8) | uint64(b[i])
		}
		return v
	}
}
