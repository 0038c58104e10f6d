// Package btree implements the HDF5 v1 B-tree used for group and chunk
// indexing.
//
// HDF5 uses v1 B-trees (signature "TREE") to efficiently index both group
// members (in v0/v1 superblock files) and chunked dataset storage. Newer
// files may index chunks with a v2 B-tree (signature "BTHD") instead; this
// reader does not support that variant (see internal/layout for the other
// chunk index formats it does support: single, fixed array, extensible
// array).
//
// # Group Indexing
//
// For v0/v1 superblock files, groups use a B-tree + local heap combination:
//
//   - [ReadGroupEntries] traverses a v1 B-tree to find all group members
//   - Each B-tree leaf points to Symbol Table Nodes containing entries
//   - Entry names are stored in the associated [heap.LocalHeap]
//
// # Chunk Indexing
//
// Chunked datasets store their data in separate chunks, indexed by B-trees:
//
//   - [ReadChunkIndex] reads a v1 B-tree chunk index
//   - [ChunkEntry] contains the chunk offset, address, size, and filter mask
//   - [ChunkIndex] provides a FindChunk method for coordinate-based lookup
//
// # Key Types
//
//   - [ChunkEntry]: Represents a single chunk with its file address and metadata
//   - [ChunkIndex]: Collection of chunk entries with lookup capability
//   - [GroupEntry]: Represents a group member (name, address, link type)
package btree
