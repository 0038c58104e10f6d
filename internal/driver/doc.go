// Package driver provides the Driver interface implementations used by
// this module:
//
//   - [Local]: reads a file on the local filesystem.
//   - [HTTPRange]: reads an object over HTTP range requests, for
//     cloud-object-store-backed files.
//
// Everything above the driver layer (the binary reader, the block cache)
// only ever sees the Driver interface.
package driver
