// Package assembler is the concurrent dataset read path layered on top of
// internal/layout's chunk index readers and internal/cache's block cache.
//
// Where internal/layout.Chunked.Read reads an entire dataset synchronously
// and is kept as a simple non-cached fallback, Assembler.Read:
//
//  1. Lists the chunks the dataset's index claims exist.
//  2. Discards any that don't intersect the requested Selection.
//  3. Fetches the surviving chunks concurrently through a cache.Cache,
//     bounded by a worker pool (golang.org/x/sync/errgroup).
//  4. Runs each chunk through the dataset's filter pipeline.
//  5. Places the decoded bytes into the output buffer.
package assembler
