// Package interfaces defines the storage contract shared by every blob backend,
// separating interface definitions from implementations.
//
// # Storage Interface
//
// Storage is implemented by the local sharded filesystem backend and by the
// remote object-store backends (S3 and MinIO). Callers obtain an instance from
// the registry and use it without knowing which backend is bound.
//
// # Identifiers
//
// BlobID is a random 128-bit identifier. Externally it is always written as
// 32 lowercase hex characters:
//
//   - local layout:  <root>/<database>/stripe_<n>/<id-hex>.bin
//   - remote layout: <database>/<id-hex>
//
// where n = id mod stripes. Changing the stripe count of an existing database
// makes previously stored blobs unreachable.
//
// # Errors
//
// All runtime failures satisfy errors.Is(err, ErrStorage); the narrower
// ErrNotFound, ErrNotInitialized, ErrAlreadyExists and ErrUnknownDatabase let
// callers branch on the failure kind. Construction problems return
// ErrInvalidConfig.
package interfaces
