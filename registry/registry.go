package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/photo"
	"github.com/theirix/simple-file-repository/storage"
)

// Registry binds database names to photo storages.
// It is created empty; Get fails with ErrNotInitialized until Bind succeeds.
type Registry struct {
	mu        sync.RWMutex
	storages  map[string]*photo.PhotoStorage
	names     []string
	directory string
	bound     bool

	log *slog.Logger
}

// New creates an unbound registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Bind builds one photo storage per configured name, replacing any previous
// binding. On error the previous binding is kept.
func (r *Registry) Bind(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	converter := photo.NewImageMagickConverter(cfg.ImageMagickConvert)
	if err := converter.Available(); err != nil {
		// thumbnails fail until the executable appears
		r.log.Warn("Image converter not found", slog.String("path", converter.Path()), "err", err)
	}

	backends := make(map[string]interfaces.Storage, len(cfg.Names))
	for _, name := range cfg.Names {
		backend, err := r.newBackend(cfg, name)
		if err != nil {
			return fmt.Errorf("failed to bind %q: %w", name, err)
		}
		backends[name] = backend
	}

	return r.BindStorages(cfg.Names, backends, converter, cfg.StorageDirectory)
}

// BindStorages binds already constructed backends in the given name order.
func (r *Registry) BindStorages(names []string, backends map[string]interfaces.Storage, converter photo.Converter, directory string) error {
	storages := make(map[string]*photo.PhotoStorage, len(names))
	for _, name := range names {
		backend, ok := backends[name]
		if !ok {
			return fmt.Errorf("%w: no backend for %q", interfaces.ErrInvalidConfig, name)
		}
		storages[name] = photo.NewPhotoStorage(backend, converter, r.log)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.storages = storages
	r.names = append([]string(nil), names...)
	r.directory = directory
	r.bound = true

	r.log.Info("Registry bound",
		slog.String("names", strings.Join(names, ",")),
		slog.String("directory", directory))
	return nil
}

func (r *Registry) newBackend(cfg *Config, name string) (interfaces.Storage, error) {
	if !cfg.IsRemote(name) {
		return storage.NewFileStorage(storage.FileStorageConfig{
			Root:     cfg.StorageDirectory,
			Database: name,
			Stripes:  cfg.Stripes,
			FilePerm: os.FileMode(cfg.FilePerm),
			DirPerm:  os.FileMode(cfg.DirPerm),
		}, r.log)
	}

	remote := cfg.Remote
	if remote.Driver == DriverMinio {
		endpoint, secure, err := minioEndpoint(remote.EndpointURL)
		if err != nil {
			return nil, err
		}
		return storage.NewMinioStorage(storage.MinioConfig{
			Database:            name,
			Bucket:              remote.Bucket,
			Endpoint:            endpoint,
			Region:              remote.Region,
			AccessKeyID:         remote.AccessKeyID,
			SecretAccessKey:     remote.SecretAccessKey,
			Secure:              secure,
			DefaultCacheControl: remote.DefaultCacheControl,
		}, r.log)
	}
	return storage.NewS3Storage(storage.S3Config{
		Database:            name,
		Bucket:              remote.Bucket,
		Region:              remote.Region,
		AccessKeyID:         remote.AccessKeyID,
		SecretAccessKey:     remote.SecretAccessKey,
		Endpoint:            remote.EndpointURL,
		PathStyle:           remote.PathStyle,
		DefaultCacheControl: remote.DefaultCacheControl,
	}, r.log)
}

// Get returns the storage bound to name.
func (r *Registry) Get(name string) (*photo.PhotoStorage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.bound {
		return nil, fmt.Errorf("%w: registry is not bound", interfaces.ErrNotInitialized)
	}
	s, ok := r.storages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not found in %s", interfaces.ErrUnknownDatabase, name, r.describe())
	}
	return s, nil
}

// Names returns the bound names in configuration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Clean cleans every bound storage. All storages are attempted; failures are joined.
func (r *Registry) Clean(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.bound {
		return fmt.Errorf("%w: registry is not bound", interfaces.ErrNotInitialized)
	}
	var errs []error
	for _, name := range r.names {
		if err := r.storages[name].Clean(ctx); err != nil {
			r.log.Error("Failed to clean storage", slog.String("database", name), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Unbind drops every storage. Stored blobs are not touched.
func (r *Registry) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storages = nil
	r.names = nil
	r.directory = ""
	r.bound = false
}

func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.describe()
}

func (r *Registry) describe() string {
	if len(r.names) == 0 {
		return "Registry: empty"
	}
	return fmt.Sprintf("Registry: %s at dir %s", strings.Join(r.names, ","), r.directory)
}
