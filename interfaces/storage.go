package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrStorage is the catch-all storage failure. Every error returned by a
	// Storage operation satisfies errors.Is(err, ErrStorage) except
	// construction-time ErrInvalidConfig.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when no blob exists for the requested identifier.
	ErrNotFound = fmt.Errorf("%w: blob not found", ErrStorage)

	// ErrNotInitialized is returned when the database (local) or the registry
	// binding has not been created yet, or was removed by Clean.
	ErrNotInitialized = fmt.Errorf("%w: storage is not initialized", ErrStorage)

	// ErrAlreadyExists is returned by the local backend when an override
	// identifier collides with a stored blob. The remote backends overwrite instead.
	ErrAlreadyExists = fmt.Errorf("%w: blob already stored", ErrStorage)

	// ErrUnknownDatabase is returned by the registry for unregistered database names.
	ErrUnknownDatabase = fmt.Errorf("%w: unknown database", ErrStorage)

	// ErrInvalidConfig is returned by constructors for invalid stripe counts,
	// blank database names, or database names containing a slash.
	ErrInvalidConfig = errors.New("invalid storage configuration")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidParams is returned when GetPath receives an unsupported URL parameter.
	ErrInvalidParams = fmt.Errorf("%w: invalid url parameters", ErrStorage)

	// ErrConverterUnavailable is returned when the thumbnail converter executable cannot be resolved.
	ErrConverterUnavailable = errors.New("image converter is not available")

	// ErrNoExtension is returned when no file extension is known for a thumbnail mime type.
	ErrNoExtension = errors.New("extension cannot be deduced for mime type")
)

// StoreOptions carries the optional arguments of Storage.Store.
type StoreOptions struct {
	// ContentType is stored as object metadata by remote backends.
	ContentType string

	// Tags are stored as object tags by remote backends.
	Tags map[string]string

	// OverrideID stores the blob under a caller-chosen identifier.
	OverrideID *BlobID

	// CacheControl overrides the backend default Cache-Control, if any.
	// A non-nil empty string is sent as is.
	CacheControl *string
}

// URLParams are response-header overrides embedded into a pre-signed URL,
// keyed by S3 GetObject parameter name (for example "ResponseContentType").
type URLParams map[string]string

// Supported URLParams keys.
const (
	ParamResponseContentType        = "ResponseContentType"
	ParamResponseCacheControl       = "ResponseCacheControl"
	ParamResponseContentDisposition = "ResponseContentDisposition"
	ParamResponseContentEncoding    = "ResponseContentEncoding"
	ParamResponseContentLanguage    = "ResponseContentLanguage"
	ParamResponseExpires            = "ResponseExpires"
)

// QueryName maps a URLParams key to its S3 query string name,
// e.g. ResponseContentType to response-content-type.
func QueryName(param string) (string, bool) {
	switch param {
	case ParamResponseContentType:
		return "response-content-type", true
	case ParamResponseCacheControl:
		return "response-cache-control", true
	case ParamResponseContentDisposition:
		return "response-content-disposition", true
	case ParamResponseContentEncoding:
		return "response-content-encoding", true
	case ParamResponseContentLanguage:
		return "response-content-language", true
	case ParamResponseExpires:
		return "response-expires", true
	default:
		return "", false
	}
}

// Storage is a blob store addressed by BlobID within one database.
//
// Both the local and the remote implementations satisfy it, with two
// documented asymmetries that callers must not paper over:
//   - Store with an OverrideID that already exists fails with ErrAlreadyExists
//     on the local backend and silently overwrites on remote backends.
//   - GetMimeType sniffs content locally and returns stored metadata remotely.
//
// Operations on distinct identifiers may run concurrently. Operations on the
// same identifier are not synchronized.
type Storage interface {
	// IsLocal reports whether GetPath returns a filesystem path.
	IsLocal() bool

	// Store persists content under a fresh identifier or opts.OverrideID.
	Store(ctx context.Context, content []byte, opts StoreOptions) (BlobID, error)

	// Get returns the blob content or ErrNotFound.
	Get(ctx context.Context, id BlobID) ([]byte, error)

	// GetPath returns an on-disk path (local) or a 24h pre-signed URL (remote).
	GetPath(ctx context.Context, id BlobID, params URLParams) (string, error)

	// Exists reports presence. Absence is (false, nil), never ErrNotFound.
	Exists(ctx context.Context, id BlobID) (bool, error)

	// Delete removes the blob or fails with ErrNotFound.
	Delete(ctx context.Context, id BlobID) error

	// GetMimeType returns the content type of a stored blob.
	GetMimeType(ctx context.Context, id BlobID) (string, error)

	// Count returns the number of blobs. Linear in blob count; not for hot paths.
	Count(ctx context.Context) (int, error)

	// List returns hex identifiers of all blobs. Linear in blob count; not for hot paths.
	List(ctx context.Context) ([]string, error)

	// Clean removes every blob of the database (local) or does nothing (remote).
	Clean(ctx context.Context) error

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	User   *url.Userinfo
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "file", "s3", "minio":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system storage location.
func (loc StorageBackendLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 storage location.
func (loc StorageBackendLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsMinio checks if this is a MinIO storage location.
func (loc StorageBackendLocation) IsMinio() bool {
	return loc.Scheme == "minio"
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// ValidateDatabaseName rejects blank names and names containing a slash.
func ValidateDatabaseName(database string) error {
	if strings.TrimSpace(database) == "" {
		return fmt.Errorf("%w: invalid database name %q", ErrInvalidConfig, database)
	}
	if strings.ContainsAny(database, `/\`) {
		return fmt.Errorf("%w: database name %q must not contain a slash", ErrInvalidConfig, database)
	}
	return nil
}
