// Package driver abstracts the byte source an HDF5 file is read from,
// so the rest of this module never talks to an *os.File or *http.Client
// directly.
package driver

import "context"

// Driver reads byte ranges from an underlying file, local or remote.
// Implementations must be safe for concurrent use: the block cache and
// dataset assembler both issue Read calls from multiple goroutines.
type Driver interface {
	// Read returns exactly length bytes starting at offset, or an error.
	// A short read past the end of the file returns an error rather than
	// a truncated slice.
	Read(ctx context.Context, offset int64, length int) ([]byte, error)

	// Size returns the total size of the underlying file in bytes.
	Size(ctx context.Context) (int64, error)

	// Close releases any resources held by the driver (file handles,
	// connection pools). It does not cancel in-flight reads.
	Close() error
}
