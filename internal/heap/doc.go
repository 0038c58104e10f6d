// Package heap implements HDF5 heap structures used to store group member
// names and fractal heap managed objects.
//
// # Local Heap
//
// The [LocalHeap] (signature "HEAP") stores variable-length data for v0/v1
// groups, primarily object names. Each v0/v1 group has an associated local
// heap where member names are stored as null-terminated strings.
//
// Local heap structure:
//   - Fixed header with data segment size and free list offset
//   - Data segment containing null-terminated strings
//   - Symbol table entries reference strings by offset into this heap
//
// Usage:
//
//	heap, err := heap.ReadLocalHeap(reader, heapAddress)
//	name := heap.GetString(nameOffset)
//
// # Fractal Heap
//
// New-style ("dense") groups store their Link messages in a [FractalHeap]
// (signature "FRHP") instead of a symbol table. [ReadFractalHeap] parses
// the header and [FractalHeap.GetObject] resolves a single heap ID to its
// object bytes, supporting the direct-block root case (indirect blocks and
// huge objects are not implemented).
//
// Usage:
//
//	fh, err := heap.ReadFractalHeap(reader, heapAddress)
//	data, err := fh.GetObject(heapID)
//
// Finding which heap ID holds a given link by name, or enumerating every
// link in the heap, is normally done via the group's v2 B-tree name index;
// since v2 B-trees are an explicit Non-goal of this module, dense groups
// report hdf5.ErrDenseGroupUnsupported from path resolution and Members
// rather than silently skipping them. GetObject itself is real,
// grounding-complete infrastructure: it is what an eventual v2 B-tree
// index would call once a heap ID is in hand.
//
// Variable-length string and sequence data stored in HDF5's global heap
// ("GCOL") is out of scope for this package; see the datatype Non-goals.
//
// # Key Types
//
//   - [LocalHeap]: local heap for group names (v0/v1 groups)
//   - [FractalHeap]: fractal heap for new-style group link storage
package heap
