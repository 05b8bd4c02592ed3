package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/theirix/simple-file-repository/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageBackendFactory{
		log: logger,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///var/lib/sfr?database=db&stripes=1000 - local sharded storage
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/database?region=us-east-1&endpoint=...&path_style=true&cache_control=...
//   - minio://[ACCESS_KEY:SECRET_KEY@]host:port/bucket/database?region=us-east-1&secure=true&cache_control=...
//
// Every backend's LocationURI is accepted here and yields an equivalent backend.
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.Storage, error) {
	switch {
	case location.IsFile():
		return sf.createFileBackend(location)
	case location.IsS3():
		return sf.createS3Backend(location)
	case location.IsMinio():
		return sf.createMinioBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// StorageBackendForURI parses uri and creates the matching backend.
func (sf *StorageBackendFactory) StorageBackendForURI(uri string) (interfaces.Storage, error) {
	location, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}
	return sf.StorageBackendFor(location)
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.Storage, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc.String())
	}

	cfg := FileStorageConfig{
		Root:     path,
		Database: loc.GetParam("database"),
	}
	if raw := loc.GetParam("stripes"); raw != "" {
		stripes, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid stripes %q", interfaces.ErrInvalidLocationURI, raw)
		}
		cfg.Stripes = stripes
	}
	return NewFileStorage(cfg, sf.log)
}

// splitPath splits a URI path into its non-empty segments.
func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func credentialsFrom(user *url.Userinfo) (string, string) {
	if user == nil {
		return "", ""
	}
	secret, _ := user.Password()
	if env := os.Getenv(SecretAccessKeyEnv); env != "" && secret == "" {
		secret = env
	}
	return user.Username(), secret
}

// SecretAccessKeyEnv supplies the secret when a location URI carries only an access key.
const SecretAccessKeyEnv = "SFR_SECRET_ACCESS_KEY"

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.Storage, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	parts := splitPath(loc.Path)
	if len(parts) != 1 {
		return nil, fmt.Errorf("%w: expected s3://bucket/database", interfaces.ErrInvalidLocationURI)
	}

	accessKey, secretKey := credentialsFrom(loc.User)
	if accessKey == "" {
		sf.log.Debug("No credentials in URI, using default AWS credential chain")
	}

	return NewS3Storage(S3Config{
		Database:            parts[0],
		Bucket:              loc.Host,
		Region:              loc.GetParam("region"),
		Endpoint:            loc.GetParam("endpoint"),
		PathStyle:           loc.GetParamBool("path_style"),
		DefaultCacheControl: loc.GetParam("cache_control"),
		AccessKeyID:         accessKey,
		SecretAccessKey:     secretKey,
	}, sf.log)
}

func (sf *StorageBackendFactory) createMinioBackend(loc interfaces.StorageBackendLocation) (interfaces.Storage, error) {
	sf.log.Debug("Creating minio backend", slog.String("endpoint", loc.Host))

	parts := splitPath(loc.Path)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected minio://host:port/bucket/database", interfaces.ErrInvalidLocationURI)
	}

	accessKey, secretKey := credentialsFrom(loc.User)
	return NewMinioStorage(MinioConfig{
		Database:            parts[1],
		Bucket:              parts[0],
		Endpoint:            loc.Host,
		Region:              loc.GetParam("region"),
		Secure:              loc.GetParamBool("secure"),
		DefaultCacheControl: loc.GetParam("cache_control"),
		AccessKeyID:         accessKey,
		SecretAccessKey:     secretKey,
	}, sf.log)
}
