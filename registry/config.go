package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/storage"
	"gopkg.in/yaml.v3"
)

// Remote drivers.
const (
	DriverS3    = "s3"
	DriverMinio = "minio"
)

// Config binds database names to backends.
//
// Example:
//
//	names: [photos, avatars]
//	storage_directory: /var/lib/sfr
//	stripes: 1000
//	file_perm: 0660
//	dir_perm: 0770
//	imagemagick_convert: /usr/bin/convert
//	remote_names: [avatars]
//	remote:
//	  driver: s3
//	  bucket: sfr-prod
//	  region: eu-west-1
//	  access_key_id: AKIA...
//	  default_cache_control: max-age=86400
type Config struct {
	Names              []string `yaml:"names"`
	StorageDirectory   string   `yaml:"storage_directory"`
	Stripes            int      `yaml:"stripes"`
	FilePerm           uint32   `yaml:"file_perm"`
	DirPerm            uint32   `yaml:"dir_perm"`
	ImageMagickConvert string   `yaml:"imagemagick_convert"`

	// RemoteNames are the names kept in the remote bucket. Every other name
	// is stored under StorageDirectory.
	RemoteNames []string     `yaml:"remote_names"`
	Remote      RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds the connection parameters shared by all remote names.
type RemoteConfig struct {
	Driver              string `yaml:"driver"`
	Bucket              string `yaml:"bucket"`
	Region              string `yaml:"region"`
	AccessKeyID         string `yaml:"access_key_id"`
	SecretAccessKey     string `yaml:"secret_access_key"`
	EndpointURL         string `yaml:"endpoint_url"`
	DefaultCacheControl string `yaml:"default_cache_control"`
	PathStyle           bool   `yaml:"path_style"`
}

// LoadConfig reads a YAML config file. The secret access key may be
// supplied through SFR_SECRET_ACCESS_KEY instead of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML config. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrInvalidConfig, err)
	}
	if secret := os.Getenv(storage.SecretAccessKeyEnv); secret != "" {
		cfg.Remote.SecretAccessKey = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsRemote reports whether name is bound to the remote bucket.
func (c *Config) IsRemote(name string) bool {
	return slices.Contains(c.RemoteNames, name)
}

// Validate checks names and the settings the bound backends need.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Names))
	local := false
	for _, name := range c.Names {
		if err := interfaces.ValidateDatabaseName(name); err != nil {
			return err
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate database name %q", interfaces.ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
		if !c.IsRemote(name) {
			local = true
		}
	}
	for _, name := range c.RemoteNames {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("%w: remote name %q is not in names", interfaces.ErrInvalidConfig, name)
		}
	}

	if local && strings.TrimSpace(c.StorageDirectory) == "" {
		return fmt.Errorf("%w: storage_directory is required for local names", interfaces.ErrInvalidConfig)
	}
	if c.Stripes < 0 {
		return fmt.Errorf("%w: invalid stripe count %d", interfaces.ErrInvalidConfig, c.Stripes)
	}
	if c.FilePerm > 0o777 || c.DirPerm > 0o777 {
		return fmt.Errorf("%w: permissions must be at most 0777", interfaces.ErrInvalidConfig)
	}

	if len(c.RemoteNames) == 0 {
		return nil
	}
	switch c.Remote.Driver {
	case "", DriverS3, DriverMinio:
	default:
		return fmt.Errorf("%w: unknown remote driver %q", interfaces.ErrInvalidConfig, c.Remote.Driver)
	}
	if strings.TrimSpace(c.Remote.Bucket) == "" {
		return fmt.Errorf("%w: remote.bucket is required for remote names", interfaces.ErrInvalidConfig)
	}
	if c.Remote.Driver == DriverMinio && c.Remote.EndpointURL == "" {
		return fmt.Errorf("%w: remote.endpoint_url is required for the minio driver", interfaces.ErrInvalidConfig)
	}
	return nil
}

// minioEndpoint splits endpoint_url into the host[:port] minio-go expects
// and whether TLS is used. A bare host[:port] means plain HTTP.
func minioEndpoint(endpointURL string) (string, bool, error) {
	if !strings.Contains(endpointURL, "://") {
		return endpointURL, false, nil
	}
	u, err := url.Parse(endpointURL)
	if err != nil {
		return "", false, fmt.Errorf("%w: invalid endpoint_url: %w", interfaces.ErrInvalidConfig, err)
	}
	return u.Host, u.Scheme == "https", nil
}
