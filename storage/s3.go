package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/theirix/simple-file-repository/interfaces"
)

const (
	// PresignExpiry is the validity window of URLs returned by remote GetPath.
	PresignExpiry = 24 * time.Hour

	// maxReadAttempts bounds retries of incomplete object reads. No delay is
	// applied between attempts.
	maxReadAttempts = 5

	defaultRegion = "us-east-1"
)

// S3Config configures an S3Storage.
type S3Config struct {
	Database        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint string

	// PathStyle forces path-style addressing, needed by most S3-compatible services.
	PathStyle bool

	// DefaultCacheControl is attached to stored objects unless the call
	// supplies its own value. Empty means no Cache-Control.
	DefaultCacheControl string
}

// S3Storage implements a blob storage backend using Amazon S3 or compatible services.
// Objects are keyed <database>/<id-hex>.
type S3Storage struct {
	client              s3iface.S3API
	bucket              string
	database            string
	defaultCacheControl string
	log                 *slog.Logger
	locationURI         string
}

// NewS3Storage creates an S3 client from cfg and wraps it.
// Without an access key the default AWS credential chain is used.
func NewS3Storage(cfg S3Config, log *slog.Logger) (*S3Storage, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	awsCfg := aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewS3StorageWithClient(s3.New(sess), cfg, log)
}

// NewS3StorageWithClient wraps an existing S3 client.
func NewS3StorageWithClient(client s3iface.S3API, cfg S3Config, log *slog.Logger) (*S3Storage, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := interfaces.ValidateDatabaseName(cfg.Database); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: empty bucket name", interfaces.ErrInvalidConfig)
	}

	query := url.Values{}
	if cfg.Region != "" {
		query.Set("region", cfg.Region)
	}
	if cfg.Endpoint != "" {
		query.Set("endpoint", cfg.Endpoint)
	}
	if cfg.PathStyle {
		query.Set("path_style", "true")
	}
	if cfg.DefaultCacheControl != "" {
		query.Set("cache_control", cfg.DefaultCacheControl)
	}
	uri := fmt.Sprintf("s3://%s/%s", cfg.Bucket, cfg.Database)
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	return &S3Storage{
		client:              client,
		bucket:              cfg.Bucket,
		database:            cfg.Database,
		defaultCacheControl: cfg.DefaultCacheControl,
		log:                 log,
		locationURI:         uri,
	}, nil
}

func (b *S3Storage) key(id interfaces.BlobID) string {
	return b.database + "/" + id.String()
}

func (b *S3Storage) prefix() string {
	return b.database + "/"
}

// isS3NotFound normalizes the two shapes of a missing key: a typed NoSuchKey
// from GetObject and a bare 404 from HeadObject.
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// isIncompleteRead reports a body that ended before its declared length.
func isIncompleteRead(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// IsLocal returns false: GetPath yields pre-signed URLs.
func (b *S3Storage) IsLocal() bool {
	return false
}

// Get retrieves an object, retrying incomplete reads up to five times.
func (b *S3Storage) Get(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	start := time.Now()
	key := b.key(id)

	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		data, err := b.getObject(ctx, key)
		if err == nil {
			b.log.Debug("Fetched blob from S3",
				slog.String("bucket", b.bucket),
				slog.String("key", key),
				slog.Int("size", len(data)),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
		}
		if !isIncompleteRead(err) {
			b.log.Error("Failed to get object from S3",
				slog.String("bucket", b.bucket),
				slog.String("key", key),
				"err", err,
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: failed to get object from S3: %w", interfaces.ErrStorage, err)
		}
		b.log.Info("Incomplete read from S3, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			"err", err)
	}

	return nil, fmt.Errorf("%w: cannot get blob %s due to incomplete reads", interfaces.ErrStorage, id)
}

func (b *S3Storage) getObject(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, err
	}
	if result.ContentLength != nil && int64(len(data)) != *result.ContentLength {
		return nil, fmt.Errorf("read %d of %d bytes: %w", len(data), *result.ContentLength, io.ErrUnexpectedEOF)
	}
	return data, nil
}

// GetPath returns a pre-signed GET URL valid for 24 hours. It is computed
// locally and does not check that the object exists.
func (b *S3Storage) GetPath(ctx context.Context, id interfaces.BlobID, params interfaces.URLParams) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
	}
	if err := applyURLParams(input, params); err != nil {
		return "", err
	}

	req, _ := b.client.GetObjectRequest(input)
	signed, err := req.Presign(PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign url: %w", interfaces.ErrStorage, err)
	}
	return signed, nil
}

func applyURLParams(input *s3.GetObjectInput, params interfaces.URLParams) error {
	for name, value := range params {
		switch name {
		case interfaces.ParamResponseContentType:
			input.ResponseContentType = aws.String(value)
		case interfaces.ParamResponseCacheControl:
			input.ResponseCacheControl = aws.String(value)
		case interfaces.ParamResponseContentDisposition:
			input.ResponseContentDisposition = aws.String(value)
		case interfaces.ParamResponseContentEncoding:
			input.ResponseContentEncoding = aws.String(value)
		case interfaces.ParamResponseContentLanguage:
			input.ResponseContentLanguage = aws.String(value)
		case interfaces.ParamResponseExpires:
			expires, err := http.ParseTime(value)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", interfaces.ErrInvalidParams, name, err)
			}
			input.ResponseExpires = aws.Time(expires)
		default:
			return fmt.Errorf("%w: unsupported parameter %q", interfaces.ErrInvalidParams, name)
		}
	}
	return nil
}

// Exists heads the object. A 404 is reported as false.
func (b *S3Storage) Exists(ctx context.Context, id interfaces.BlobID) (bool, error) {
	_, err := b.headObject(ctx, id)
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: failed to head object: %w", interfaces.ErrStorage, err)
}

func (b *S3Storage) headObject(ctx context.Context, id interfaces.BlobID) (*s3.HeadObjectOutput, error) {
	return b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
	})
}

// Store uploads content. An existing object under OverrideID is overwritten.
func (b *S3Storage) Store(ctx context.Context, content []byte, opts interfaces.StoreOptions) (interfaces.BlobID, error) {
	id := interfaces.NewBlobID()
	if opts.OverrideID != nil {
		id = *opts.OverrideID
	}
	key := b.key(id)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if len(opts.Tags) > 0 {
		input.Tagging = aws.String(encodeTags(opts.Tags))
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if cacheControl, ok := b.cacheControl(opts); ok {
		input.CacheControl = aws.String(cacheControl)
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		return id, fmt.Errorf("%w: failed to upload object to S3: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Stored blob in S3",
		slog.String("bucket", b.bucket),
		slog.String("key", key),
		slog.Int("size", len(content)))

	return id, nil
}

func (b *S3Storage) cacheControl(opts interfaces.StoreOptions) (string, bool) {
	return resolveCacheControl(opts.CacheControl, b.defaultCacheControl)
}

// resolveCacheControl gives an explicit per-call value precedence over the
// backend default.
func resolveCacheControl(explicit *string, fallback string) (string, bool) {
	if explicit != nil {
		return *explicit, true
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

func encodeTags(tags map[string]string) string {
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}

// Delete probes for the object first, since S3 deletes of missing keys succeed.
func (b *S3Storage) Delete(ctx context.Context, id interfaces.BlobID) error {
	exists, err := b.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}

	_, err = b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete object: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Deleted blob from S3", slog.String("key", b.key(id)))
	return nil
}

// GetMimeType returns the stored Content-Type, DefaultMimeType if unset.
func (b *S3Storage) GetMimeType(ctx context.Context, id interfaces.BlobID) (string, error) {
	head, err := b.headObject(ctx, id)
	if err != nil {
		if isS3NotFound(err) {
			return "", fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
		}
		return "", fmt.Errorf("%w: failed to head object: %w", interfaces.ErrStorage, err)
	}
	contentType := aws.StringValue(head.ContentType)
	if contentType == "" {
		contentType = DefaultMimeType
	}
	return contentType, nil
}

// Count pages through every key under the database prefix.
func (b *S3Storage) Count(ctx context.Context) (int, error) {
	count := 0
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix()),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		count += int(aws.Int64Value(page.KeyCount))
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to list objects: %w", interfaces.ErrStorage, err)
	}
	return count, nil
}

// List pages through every key under the database prefix and returns the
// trailing key segment of each.
func (b *S3Storage) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix()),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			ids = append(ids, lastSegment(aws.StringValue(obj.Key)))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list objects: %w", interfaces.ErrStorage, err)
	}
	return ids, nil
}

func lastSegment(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

// Clean is a no-op: bucket contents are never removed in bulk.
func (b *S3Storage) Clean(ctx context.Context) error {
	b.log.Debug("Clean is a no-op for S3 storage", slog.String("database", b.database))
	return nil
}

// Name returns a unique identifier for this storage backend.
func (b *S3Storage) Name() string {
	return fmt.Sprintf("S3Storage db=%s", b.database)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Storage) LocationURI() string {
	return b.locationURI
}
