package message

import (
	"fmt"

	binpkg "github.com/h5coro-go/h5coro/internal/binary"
)

// LinkInfo is the Link Info message (type 0x0002): present on new-style
// groups, it points at the fractal heap and v2 B-tree name index that hold
// the group's Link messages instead of storing them directly in the
// object header.
type LinkInfo struct {
	Version                uint8
	Flags                  uint8
	MaxCreationIndex       uint64
	FractalHeapAddress     uint64
	NameIndexBTreeAddress  uint64
	OrderIndexBTreeAddress uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// IsDense reports whether this group stores its links in a fractal heap
// rather than inline Link messages.
func (m *LinkInfo) IsDense(r *binpkg.Reader) bool {
	return m.FractalHeapAddress != 0 && !r.IsUndefinedOffset(m.FractalHeapAddress)
}

const (
	linkInfoFlagTrackCreationOrder = 0x01
	linkInfoFlagIndexCreationOrder = 0x02
)

func parseLinkInfo(data []byte, r *binpkg.Reader) (*LinkInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("link info message too short")
	}

	li := &LinkInfo{
		Version: data[0],
		Flags:   data[1],
	}
	offset := 2
	offsetSize := r.OffsetSize()
	order := r.ByteOrder()

	if li.Flags&linkInfoFlagTrackCreationOrder != 0 {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("link info max creation index truncated")
		}
		li.MaxCreationIndex = decodeUint(data[offset:offset+8], 8, order)
		offset += 8
	}

	if offset+offsetSize > len(data) {
		return nil, fmt.Errorf("link info fractal heap address truncated")
	}
	li.FractalHeapAddress = decodeUint(data[offset:offset+offsetSize], offsetSize, order)
	offset += offsetSize

	if offset+offsetSize > len(data) {
		return nil, fmt.Errorf("link info name index address truncated")
	}
	li.NameIndexBTreeAddress = decodeUint(data[offset:offset+offsetSize], offsetSize, order)
	offset += offsetSize

	if li.Flags&linkInfoFlagIndexCreationOrder != 0 {
		if offset+offsetSize > len(data) {
			return nil, fmt.Errorf("link info creation order index address truncated")
		}
		li.OrderIndexBTreeAddress = decodeUint(data[offset:offset+offsetSize], offsetSize, order)
	}

	return li, nil
}
