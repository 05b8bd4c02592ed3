package registry

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/theirix/simple-file-repository/interfaces"
)

// MockStorage mocks the interfaces.Storage interface
type MockStorage struct {
	mock.Mock
	name string
}

// NewMockStorage creates a mock reporting name from Name.
func NewMockStorage(name string) *MockStorage {
	return &MockStorage{name: name}
}

// IsLocal mocks the IsLocal method
func (m *MockStorage) IsLocal() bool {
	args := m.Called()
	return args.Bool(0)
}

// Store mocks the Store method
func (m *MockStorage) Store(ctx context.Context, content []byte, opts interfaces.StoreOptions) (interfaces.BlobID, error) {
	args := m.Called(ctx, content, opts)
	return args.Get(0).(interfaces.BlobID), args.Error(1)
}

// Get mocks the Get method
func (m *MockStorage) Get(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// GetPath mocks the GetPath method
func (m *MockStorage) GetPath(ctx context.Context, id interfaces.BlobID, params interfaces.URLParams) (string, error) {
	args := m.Called(ctx, id, params)
	return args.String(0), args.Error(1)
}

// Exists mocks the Exists method
func (m *MockStorage) Exists(ctx context.Context, id interfaces.BlobID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Delete mocks the Delete method
func (m *MockStorage) Delete(ctx context.Context, id interfaces.BlobID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// GetMimeType mocks the GetMimeType method
func (m *MockStorage) GetMimeType(ctx context.Context, id interfaces.BlobID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

// Count mocks the Count method
func (m *MockStorage) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// List mocks the List method
func (m *MockStorage) List(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Clean mocks the Clean method
func (m *MockStorage) Clean(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Name returns the name given to NewMockStorage
func (m *MockStorage) Name() string {
	return m.name
}

// LocationURI returns a fixed mock URI
func (m *MockStorage) LocationURI() string {
	return "mock:" + m.name
}
