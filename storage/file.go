package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/theirix/simple-file-repository/interfaces"
	"go.uber.org/atomic"
)

const (
	// DefaultStripes is the stripe count used when none is configured.
	DefaultStripes = 1000

	// DefaultFilePerm is applied to every stored blob file.
	DefaultFilePerm os.FileMode = 0o660

	// DefaultDirPerm is applied to the root, database and stripe directories.
	DefaultDirPerm os.FileMode = 0o770

	blobExt       = ".bin"
	stripePrefix  = "stripe_"
	tmpPattern    = "sfr-*.tmp"
	mimePeekBytes = 500
)

// FileStorageConfig configures a FileStorage.
type FileStorageConfig struct {
	// Root is the storage directory shared by all databases.
	Root string

	// Database is the name of the subdirectory holding this database.
	Database string

	// Stripes is the number of stripe directories. Zero means DefaultStripes.
	Stripes int

	// FilePerm and DirPerm default to DefaultFilePerm and DefaultDirPerm.
	FilePerm os.FileMode
	DirPerm  os.FileMode

	// Deferred skips directory creation; call Init before use.
	Deferred bool
}

// FileStorage implements a blob storage backend on the local file system.
// Blobs are sharded over stripe directories: <root>/<database>/stripe_<n>/<id>.bin
// with n = id mod stripes. Stripe directories are created lazily on first write.
type FileStorage struct {
	root        string
	database    string
	databaseDir string
	stripes     int
	filePerm    os.FileMode
	dirPerm     os.FileMode
	initialized atomic.Bool
	log         *slog.Logger
	locationURI string
}

// NewFileStorage validates cfg and, unless cfg.Deferred is set, creates the
// root and database directories.
func NewFileStorage(cfg FileStorageConfig, log *slog.Logger) (*FileStorage, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Stripes == 0 {
		cfg.Stripes = DefaultStripes
	}
	if cfg.Stripes < 1 {
		return nil, fmt.Errorf("%w: invalid stripe count %d", interfaces.ErrInvalidConfig, cfg.Stripes)
	}
	if err := interfaces.ValidateDatabaseName(cfg.Database); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("%w: empty storage directory", interfaces.ErrInvalidConfig)
	}
	if cfg.FilePerm == 0 {
		cfg.FilePerm = DefaultFilePerm
	}
	if cfg.DirPerm == 0 {
		cfg.DirPerm = DefaultDirPerm
	}

	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("stripes", strconv.Itoa(cfg.Stripes))

	b := &FileStorage{
		root:        cfg.Root,
		database:    cfg.Database,
		databaseDir: filepath.Join(cfg.Root, cfg.Database),
		stripes:     cfg.Stripes,
		filePerm:    cfg.FilePerm,
		dirPerm:     cfg.DirPerm,
		log:         log,
		locationURI: fmt.Sprintf("file://%s?%s", cfg.Root, query.Encode()),
	}

	if !cfg.Deferred {
		if err := b.Init(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Init creates the root and database directories if they are absent.
// It is safe to call more than once.
func (b *FileStorage) Init() error {
	if err := os.MkdirAll(b.root, b.dirPerm); err != nil {
		return fmt.Errorf("%w: cannot create dirs: %w", interfaces.ErrStorage, err)
	}
	if err := b.makeDir(b.databaseDir); err != nil {
		return fmt.Errorf("%w: cannot create dirs: %w", interfaces.ErrStorage, err)
	}
	b.initialized.Store(true)

	b.log.Debug("Initialized file storage",
		slog.String("database", b.database),
		slog.String("path", b.databaseDir),
		slog.Int("stripes", b.stripes))
	return nil
}

// makeDir creates a single directory with dirPerm applied regardless of umask.
// A directory created concurrently by another writer is not an error.
func (b *FileStorage) makeDir(path string) error {
	err := os.Mkdir(path, b.dirPerm)
	if errors.Is(err, fs.ErrExist) {
		info, statErr := os.Stat(path)
		if statErr == nil && info.IsDir() {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	return os.Chmod(path, b.dirPerm)
}

func (b *FileStorage) checkInit() error {
	if !b.initialized.Load() {
		return interfaces.ErrNotInitialized
	}
	info, err := os.Stat(b.databaseDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: missing database directory %s", interfaces.ErrNotInitialized, b.databaseDir)
	}
	return nil
}

func (b *FileStorage) stripeDir(id interfaces.BlobID) string {
	return filepath.Join(b.databaseDir, stripePrefix+strconv.Itoa(id.Stripe(b.stripes)))
}

func (b *FileStorage) blobPath(id interfaces.BlobID) string {
	return filepath.Join(b.stripeDir(id), id.String()+blobExt)
}

// statBlob reports whether path is a regular file. Absence is not an error.
func statBlob(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// existingBlobPath returns the blob path or ErrNotFound.
func (b *FileStorage) existingBlobPath(id interfaces.BlobID) (string, error) {
	path := b.blobPath(id)
	ok, err := statBlob(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}
	return path, nil
}

// IsLocal returns true: GetPath yields filesystem paths.
func (b *FileStorage) IsLocal() bool {
	return true
}

// Get reads the blob content. A missing database directory reports ErrNotFound.
func (b *FileStorage) Get(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	path, err := b.existingBlobPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Fetched blob from file",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return data, nil
}

// GetPath returns the on-disk path of an existing blob. Params are ignored.
func (b *FileStorage) GetPath(ctx context.Context, id interfaces.BlobID, params interfaces.URLParams) (string, error) {
	return b.existingBlobPath(id)
}

// Exists reports whether the blob file is present.
func (b *FileStorage) Exists(ctx context.Context, id interfaces.BlobID) (bool, error) {
	if err := b.checkInit(); err != nil {
		return false, err
	}
	ok, err := statBlob(b.blobPath(id))
	if err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	return ok, nil
}

// Store writes content into a temporary file inside the target stripe and
// renames it to its final name, so readers never observe a partial blob.
// Content type, tags and cache control are not persisted locally.
func (b *FileStorage) Store(ctx context.Context, content []byte, opts interfaces.StoreOptions) (interfaces.BlobID, error) {
	if err := b.checkInit(); err != nil {
		return interfaces.BlobID{}, err
	}

	id := interfaces.NewBlobID()
	if opts.OverrideID != nil {
		id = *opts.OverrideID
	}

	stripeDir := b.stripeDir(id)
	if err := b.makeDir(stripeDir); err != nil {
		return id, fmt.Errorf("%w: failed to create stripe directory: %w", interfaces.ErrStorage, err)
	}

	blobPath := filepath.Join(stripeDir, id.String()+blobExt)
	exists, err := statBlob(blobPath)
	if err != nil {
		return id, fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	if exists {
		return id, fmt.Errorf("%w: blob %s", interfaces.ErrAlreadyExists, id)
	}

	if err := b.writeAtomic(stripeDir, blobPath, content); err != nil {
		return id, fmt.Errorf("%w: failed to write file: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Stored blob in file",
		slog.String("path", blobPath),
		slog.String("id", id.String()),
		slog.Int("size", len(content)))

	return id, nil
}

func (b *FileStorage) writeAtomic(dir, target string, content []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}
	success = true

	return os.Chmod(target, b.filePerm)
}

// Delete removes the blob file or fails with ErrNotFound.
func (b *FileStorage) Delete(ctx context.Context, id interfaces.BlobID) error {
	if err := b.checkInit(); err != nil {
		return err
	}
	path, err := b.existingBlobPath(id)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to delete file: %w", interfaces.ErrStorage, err)
	}

	b.log.Debug("Deleted blob file", slog.String("path", path))
	return nil
}

// GetMimeType sniffs the first bytes of the blob.
func (b *FileStorage) GetMimeType(ctx context.Context, id interfaces.BlobID) (string, error) {
	path, err := b.existingBlobPath(id)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: blob %s does not exist", interfaces.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	defer f.Close()

	peek := make([]byte, mimePeekBytes)
	n, err := io.ReadFull(f, peek)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	return SniffMimeType(peek[:n]), nil
}

func (b *FileStorage) glob() ([]string, error) {
	if err := b.checkInit(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(b.databaseDir, stripePrefix+"*", "*"+blobExt))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStorage, err)
	}
	return matches, nil
}

// Count returns the number of stored blobs by scanning every stripe.
func (b *FileStorage) Count(ctx context.Context) (int, error) {
	matches, err := b.glob()
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// List returns the hex identifiers of all stored blobs by scanning every stripe.
func (b *FileStorage) List(ctx context.Context) ([]string, error) {
	matches, err := b.glob()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), blobExt))
	}
	return ids, nil
}

// Clean removes the whole database directory. Subsequent operations fail
// with ErrNotInitialized until Init is called again.
func (b *FileStorage) Clean(ctx context.Context) error {
	if !b.initialized.Load() {
		return nil
	}
	if err := os.RemoveAll(b.databaseDir); err != nil {
		return fmt.Errorf("%w: failed to remove database directory: %w", interfaces.ErrStorage, err)
	}

	b.log.Info("Cleaned file storage",
		slog.String("database", b.database),
		slog.String("path", b.databaseDir))
	return nil
}

// Name returns a unique identifier for this storage backend.
func (b *FileStorage) Name() string {
	return fmt.Sprintf("FileStorage db=%s", b.database)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileStorage) LocationURI() string {
	return b.locationURI
}

// Database returns the database name.
func (b *FileStorage) Database() string {
	return b.database
}

// Stripes returns the configured stripe count.
func (b *FileStorage) Stripes() int {
	return b.stripes
}
