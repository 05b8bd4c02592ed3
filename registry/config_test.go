package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/storage"
)

const sampleConfig = `
names: [photos, avatars]
storage_directory: /var/lib/sfr
stripes: 64
file_perm: 0640
dir_perm: 0750
imagemagick_convert: /usr/bin/convert
remote_names: [avatars]
remote:
  driver: s3
  bucket: sfr-prod
  region: eu-west-1
  access_key_id: AKID
  secret_access_key: from-file
  endpoint_url: http://127.0.0.1:9000
  default_cache_control: max-age=86400
  path_style: true
`

func TestParseConfig(t *testing.T) {
	t.Setenv(storage.SecretAccessKeyEnv, "")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"photos", "avatars"}, cfg.Names)
	assert.Equal(t, "/var/lib/sfr", cfg.StorageDirectory)
	assert.Equal(t, 64, cfg.Stripes)
	assert.Equal(t, uint32(0o640), cfg.FilePerm)
	assert.Equal(t, uint32(0o750), cfg.DirPerm)
	assert.Equal(t, "/usr/bin/convert", cfg.ImageMagickConvert)
	assert.True(t, cfg.IsRemote("avatars"))
	assert.False(t, cfg.IsRemote("photos"))
	assert.Equal(t, RemoteConfig{
		Driver:              DriverS3,
		Bucket:              "sfr-prod",
		Region:              "eu-west-1",
		AccessKeyID:         "AKID",
		SecretAccessKey:     "from-file",
		EndpointURL:         "http://127.0.0.1:9000",
		DefaultCacheControl: "max-age=86400",
		PathStyle:           true,
	}, cfg.Remote)
}

func TestParseConfig_SecretFromEnv(t *testing.T) {
	t.Setenv(storage.SecretAccessKeyEnv, "from-env")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.SecretAccessKey)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sfr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names: [photos]\nstorage_directory: /tmp/sfr\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos"}, cfg.Names)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown key", yaml: "names: [a]\nstorage_directory: /x\nbucket: b\n"},
		{name: "not yaml", yaml: "names: [a\n"},
		{name: "slash in name", yaml: "names: [a/b]\nstorage_directory: /x\n"},
		{name: "blank name", yaml: "names: ['']\nstorage_directory: /x\n"},
		{name: "duplicate name", yaml: "names: [a, a]\nstorage_directory: /x\n"},
		{name: "local without directory", yaml: "names: [a]\n"},
		{name: "negative stripes", yaml: "names: [a]\nstorage_directory: /x\nstripes: -1\n"},
		{name: "bad permissions", yaml: "names: [a]\nstorage_directory: /x\nfile_perm: 01777\n"},
		{name: "remote name not listed", yaml: "names: [a]\nstorage_directory: /x\nremote_names: [b]\nremote: {bucket: x}\n"},
		{name: "remote without bucket", yaml: "names: [a]\nremote_names: [a]\n"},
		{name: "unknown driver", yaml: "names: [a]\nremote_names: [a]\nremote: {driver: gcs, bucket: x}\n"},
		{name: "minio without endpoint", yaml: "names: [a]\nremote_names: [a]\nremote: {driver: minio, bucket: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
		})
	}
}

func TestParseConfig_RemoteOnlyNeedsNoDirectory(t *testing.T) {
	cfg, err := ParseConfig([]byte("names: [a]\nremote_names: [a]\nremote: {bucket: x}\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.StorageDirectory)
}

func TestMinioEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		endpoint string
		secure   bool
	}{
		{in: "localhost:9000", endpoint: "localhost:9000", secure: false},
		{in: "http://localhost:9000", endpoint: "localhost:9000", secure: false},
		{in: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
	}
	for _, tt := range tests {
		endpoint, secure, err := minioEndpoint(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.endpoint, endpoint, tt.in)
		assert.Equal(t, tt.secure, secure, tt.in)
	}
}
