// Package storage provides blob storage backends addressed by random 128-bit identifiers.
//
// Every backend implements interfaces.Storage for a single database:
//
//   - FileStorage keeps blobs on the local filesystem, sharded into stripe directories
//   - S3Storage keeps blobs in an S3 bucket using aws-sdk-go
//   - MinioStorage keeps blobs in MinIO or another S3-compatible service using minio-go
//
// # Storage URI Format
//
// Backends are created by StorageBackendFactory from URIs of the form:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/sfr?database=photos&stripes=1000
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/photos?region=eu-west-1&cache_control=max-age%3D3600
//   - minio://[ACCESS_KEY:SECRET_KEY@]localhost:9000/bucket/photos?secure=true
//
// When the URI names only an access key, the secret is read from SFR_SECRET_ACCESS_KEY.
//
// # Local Layout
//
// A blob lives at:
//
//	<root>/<database>/stripe_<n>/<id-hex>.bin
//
// where n is the identifier read as a big-endian 128-bit integer modulo the
// stripe count. The database directory is created on Init, stripe directories
// lazily on first store. Content is written to a temporary file in the stripe
// directory and renamed into place, so readers never observe a partial blob.
//
// # Remote Layout
//
// A blob is the object <database>/<id-hex> in the configured bucket. GetPath
// returns a pre-signed GET URL valid for 24 hours, computed locally. Reads that
// end before the declared content length are retried up to five times.
//
// # Differences Between Backends
//
// Storing under an existing override identifier fails with ErrAlreadyExists
// locally and overwrites remotely. GetMimeType sniffs the first bytes locally
// and returns the stored Content-Type remotely. Clean removes the database
// directory locally and does nothing remotely.
package storage
