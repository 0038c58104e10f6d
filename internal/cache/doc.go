// Package cache implements the block cache sitting between a driver.Driver
// and every metadata/data read this module performs.
//
// A Cache splits the underlying file into fixed-size blocks (4 MiB by
// default) and maintains an LRU index of resident blocks bounded by a
// byte budget. Concurrent misses for the exact same run of blocks
// coalesce into a single driver read via golang.org/x/sync/singleflight;
// concurrent misses whose runs differ, even where they share blocks, are
// not coalesced and each issue their own driver read. Blocks read
// through PinRead are reference-counted and excluded from eviction until
// Release is called, so the dataset assembler can hold a chunk's blocks
// live across decode without a concurrent eviction pulling them out from
// under it.
package cache
