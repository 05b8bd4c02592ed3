package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/theirix/simple-file-repository/interfaces"
)

func TestSniffMimeType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{name: "empty", content: nil, want: DefaultMimeType},
		{name: "binary", content: []byte("cafe\x01D\x04"), want: DefaultMimeType},
		{name: "png", content: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), want: "image/png"},
		{name: "gif", content: []byte("GIF89a\x01\x00\x01\x00"), want: "image/gif"},
		{name: "text drops charset", content: []byte("hello world\n"), want: "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffMimeType(tt.content))
		})
	}
	assert.Equal(t, "image/jpeg", SniffMimeType(sampleJPEG(t)))
}

func TestDeleteSilent(t *testing.T) {
	ctx := context.Background()
	id := interfaces.NewBlobID()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		deleted error
		want    error
	}{
		{name: "deleted", deleted: nil, want: nil},
		{name: "missing is ignored", deleted: interfaces.ErrNotFound, want: nil},
		{name: "other errors pass through", deleted: boom, want: boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(MockStorage)
			backend.On("Delete", ctx, id).Return(tt.deleted).Once()

			err := DeleteSilent(ctx, backend, id)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			backend.AssertExpectations(t)
		})
	}
}

// MockStorage mocks interfaces.Storage for callers of the package helpers.
type MockStorage struct {
	interfaces.Storage
	mock.Mock
}

func (m *MockStorage) Delete(ctx context.Context, id interfaces.BlobID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
