package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/theirix/simple-file-repository/interfaces"
)

// MinioConfig configures a MinioStorage.
type MinioConfig struct {
	Database        string
	Bucket          string
	Endpoint        string // host[:port], no scheme
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool

	// DefaultCacheControl is attached to stored objects unless the call
	// supplies its own value.
	DefaultCacheControl string
}

// MinioStorage implements the same remote contract as S3Storage on top of
// minio-go, for MinIO and other S3-compatible services.
type MinioStorage struct {
	client              *minio.Client
	bucket              string
	database            string
	defaultCacheControl string
	log                 *slog.Logger
	locationURI         string
}

// NewMinioStorage creates a MinIO client from cfg. The region is always set
// so that URL presigning never needs a bucket-location round trip.
func NewMinioStorage(cfg MinioConfig, log *slog.Logger) (*MinioStorage, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := interfaces.ValidateDatabaseName(cfg.Database); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: empty bucket name", interfaces.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: empty minio endpoint", interfaces.ErrInvalidConfig)
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	query := url.Values{}
	query.Set("region", cfg.Region)
	if cfg.Secure {
		query.Set("secure", "true")
	}
	if cfg.DefaultCacheControl != "" {
		query.Set("cache_control", cfg.DefaultCacheControl)
	}

	return &MinioStorage{
		client:              client,
		bucket:              cfg.Bucket,
		database:            cfg.Database,
		defaultCacheControl: cfg.DefaultCacheControl,
		log:                 log,
		locationURI:         fmt.Sprintf("minio://%s/%s/%s?%s", cfg.Endpoint, cfg.Bucket, cfg.Database, query.Encode()),
	}, nil
}

func (b *MinioStorage) key(id interfaces.BlobID) string {
	return b.database + "/" + id.String()
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// IsLocal returns false: GetPath yields pre-signed URLs.
func (b *MinioStorage) IsLocal() bool {
	return false
}

// Get retrieves an object, retrying incomplete reads up to five times.
func (b *MinioStorage) Get(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	key := b.key(id)
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		data, err := b.getObject(ctx, key)
		if err == nil {
			return data, nil
		}
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
		}
		if !isIncompleteRead(err) {
			return nil, fmt.Errorf("%w: failed to get object: %w", interfaces.ErrStorage, err)
		}
		b.log.Info("Incomplete read from minio, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			"err", err)
	}
	return nil, fmt.Errorf("%w: cannot get blob %s due to incomplete reads", interfaces.ErrStorage, id)
}

func (b *MinioStorage) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// GetPath returns a pre-signed GET URL valid for 24 hours without contacting the server.
func (b *MinioStorage) GetPath(ctx context.Context, id interfaces.BlobID, params interfaces.URLParams) (string, error) {
	reqParams := url.Values{}
	for name, value := range params {
		queryName, ok := interfaces.QueryName(name)
		if !ok {
			return "", fmt.Errorf("%w: unsupported parameter %q", interfaces.ErrInvalidParams, name)
		}
		reqParams.Set(queryName, value)
	}

	u, err := b.client.PresignedGetObject(ctx, b.bucket, b.key(id), PresignExpiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign url: %w", interfaces.ErrStorage, err)
	}
	return u.String(), nil
}

// Exists stats the object. A missing key is reported as false.
func (b *MinioStorage) Exists(ctx context.Context, id interfaces.BlobID) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, b.key(id), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isMinioNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: failed to stat object: %w", interfaces.ErrStorage, err)
}

// Store uploads content. An existing object under OverrideID is overwritten.
func (b *MinioStorage) Store(ctx context.Context, content []byte, opts interfaces.StoreOptions) (interfaces.BlobID, error) {
	id := interfaces.NewBlobID()
	if opts.OverrideID != nil {
		id = *opts.OverrideID
	}

	putOpts := minio.PutObjectOptions{
		ContentType: opts.ContentType,
		UserTags:    opts.Tags,
	}
	if cacheControl, ok := resolveCacheControl(opts.CacheControl, b.defaultCacheControl); ok {
		putOpts.CacheControl = cacheControl
	}

	start := time.Now()
	_, err := b.client.PutObject(ctx, b.bucket, b.key(id), bytes.NewReader(content), int64(len(content)), putOpts)
	if err != nil {
		return id, fmt.Errorf("%w: failed to upload object: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Stored blob in minio",
		slog.String("bucket", b.bucket),
		slog.String("key", b.key(id)),
		slog.Int("size", len(content)),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

// Delete probes for the object first, since removing a missing key succeeds.
func (b *MinioStorage) Delete(ctx context.Context, id interfaces.BlobID) error {
	exists, err := b.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}
	if err := b.client.RemoveObject(ctx, b.bucket, b.key(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: failed to delete object: %w", interfaces.ErrStorage, err)
	}
	return nil
}

// GetMimeType returns the stored Content-Type, DefaultMimeType if unset.
func (b *MinioStorage) GetMimeType(ctx context.Context, id interfaces.BlobID) (string, error) {
	info, err := b.client.StatObject(ctx, b.bucket, b.key(id), minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return "", fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
		}
		return "", fmt.Errorf("%w: failed to stat object: %w", interfaces.ErrStorage, err)
	}
	if info.ContentType == "" {
		return DefaultMimeType, nil
	}
	return info.ContentType, nil
}

func (b *MinioStorage) walk(ctx context.Context, fn func(key string)) error {
	// cancelling stops the lister goroutine if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.database + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("%w: failed to list objects: %w", interfaces.ErrStorage, obj.Err)
		}
		fn(obj.Key)
	}
	return nil
}

// Count lists every key under the database prefix.
func (b *MinioStorage) Count(ctx context.Context) (int, error) {
	count := 0
	err := b.walk(ctx, func(string) { count++ })
	return count, err
}

// List returns the trailing key segment of every key under the database prefix.
func (b *MinioStorage) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.walk(ctx, func(key string) { ids = append(ids, lastSegment(key)) })
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Clean is a no-op: bucket contents are never removed in bulk.
func (b *MinioStorage) Clean(ctx context.Context) error {
	return nil
}

// Name returns a unique identifier for this storage backend.
func (b *MinioStorage) Name() string {
	return fmt.Sprintf("MinioStorage db=%s", b.database)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MinioStorage) LocationURI() string {
	return b.locationURI
}
