package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/registry"
	"github.com/theirix/simple-file-repository/storage"
)

// copyConverter produces a "thumbnail" identical to its source.
type copyConverter struct{}

func (copyConverter) Available() error { return nil }

func (copyConverter) Convert(ctx context.Context, src, dst string, size int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

type testServer struct {
	srv     *Server
	storage *storage.FileStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := storage.NewFileStorage(storage.FileStorageConfig{Root: t.TempDir(), Database: "photos"}, logger)
	require.NoError(t, err)

	reg := registry.New(logger)
	require.NoError(t, reg.BindStorages([]string{"photos"},
		map[string]interfaces.Storage{"photos": backend}, copyConverter{}, ""))

	srv, err := New(&HTTPServerConfig{Log: logger}, reg)
	require.NoError(t, err)
	return &testServer{srv: srv, storage: backend}
}

func (ts *testServer) do(t *testing.T, method, target string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.srv.Handler.ServeHTTP(w, req)
	return w.Result()
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &result), string(body))
	return result
}

func storeBlob(t *testing.T, ts *testServer, content []byte) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/photos/blobs", content, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON(t, resp)["id"].(string)
}

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16)), nil))
	return buf.Bytes()
}

func TestHandleStoreAndGet(t *testing.T) {
	ts := newTestServer(t)
	content := sampleJPEG(t)

	id := storeBlob(t, ts, content)
	assert.Len(t, id, 32)

	resp := ts.do(t, http.MethodGet, "/api/photos/blobs/"+id, nil, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestHandleStore_Options(t *testing.T) {
	ts := newTestServer(t)
	override := interfaces.NewBlobID()

	resp := ts.do(t, http.MethodPost, "/api/photos/blobs?id="+override.String(), []byte("hello"), map[string]string{
		"Content-Type": "text/plain",
		"X-Blob-Tags":  "kind=avatar&owner=42",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, override.String(), decodeJSON(t, resp)["id"])

	// the local backend rejects a second store under the same id
	resp = ts.do(t, http.MethodPost, "/api/photos/blobs?id="+override.String(), []byte("again"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/photos/blobs?id=nothex", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/photos/blobs", []byte("x"), map[string]string{"X-Blob-Tags": "%zz"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleList(t *testing.T) {
	ts := newTestServer(t)

	result := decodeJSON(t, ts.do(t, http.MethodGet, "/api/photos/blobs", nil, nil))
	assert.Equal(t, float64(0), result["count"])
	assert.Equal(t, []any{}, result["ids"])

	id1 := storeBlob(t, ts, []byte("foo"))
	id2 := storeBlob(t, ts, []byte("bar"))

	result = decodeJSON(t, ts.do(t, http.MethodGet, "/api/photos/blobs", nil, nil))
	assert.Equal(t, float64(2), result["count"])
	assert.ElementsMatch(t, []any{id1, id2}, result["ids"])
}

func TestHandleExistsAndDelete(t *testing.T) {
	ts := newTestServer(t)
	id := storeBlob(t, ts, []byte("hello"))

	resp := ts.do(t, http.MethodHead, "/api/photos/blobs/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/photos/blobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodHead, "/api/photos/blobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/photos/blobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/photos/blobs/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/photos/blobs/"+id+"?silent=true", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHandlePath(t *testing.T) {
	ts := newTestServer(t)
	id := storeBlob(t, ts, []byte("hello"))

	result := decodeJSON(t, ts.do(t, http.MethodGet, "/api/photos/blobs/"+id+"/path", nil, nil))
	assert.Equal(t, true, result["local"])
	path, err := ts.storage.GetPath(context.Background(), interfaces.MustParseBlobID(id), nil)
	require.NoError(t, err)
	assert.Equal(t, path, result["path"])

	resp := ts.do(t, http.MethodGet, "/api/photos/blobs/"+interfaces.NewBlobID().String()+"/path", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleThumbnail(t *testing.T) {
	ts := newTestServer(t)
	id := storeBlob(t, ts, sampleJPEG(t))

	resp := ts.do(t, http.MethodPost, "/api/photos/blobs/"+id+"/thumbnail?mime=image/jpeg&size=64", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	thumbID := decodeJSON(t, resp)["id"].(string)
	assert.NotEqual(t, id, thumbID)

	count, err := ts.storage.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing mime", target: "/api/photos/blobs/" + id + "/thumbnail", status: http.StatusBadRequest},
		{name: "bad size", target: "/api/photos/blobs/" + id + "/thumbnail?mime=image/jpeg&size=-1", status: http.StatusBadRequest},
		{name: "no extension", target: "/api/photos/blobs/" + id + "/thumbnail?mime=application/x-nothing", status: http.StatusUnprocessableEntity},
		{name: "missing source", target: "/api/photos/blobs/" + interfaces.NewBlobID().String() + "/thumbnail?mime=image/jpeg", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, tt.target, nil, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/unknown/blobs", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/photos/blobs/not-an-id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, ts.storage.Clean(context.Background()))
	resp = ts.do(t, http.MethodPost, "/api/photos/blobs", []byte("x"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts.srv.handler.registry.Unbind()
	resp = ts.do(t, http.MethodGet, "/api/photos/blobs", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandler_BackendFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := registry.NewMockStorage("mock")
	backend.On("List", mock.Anything).Return(nil, errors.Join(interfaces.ErrStorage, errors.New("disk on fire")))
	backend.On("Get", mock.Anything, mock.Anything).Return(nil, interfaces.ErrNotFound)

	reg := registry.New(logger)
	require.NoError(t, reg.BindStorages([]string{"photos"}, map[string]interfaces.Storage{"photos": backend}, nil, ""))
	srv, err := New(&HTTPServerConfig{Log: logger}, reg)
	require.NoError(t, err)
	ts := &testServer{srv: srv}

	resp := ts.do(t, http.MethodGet, "/api/photos/blobs", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/photos/blobs/"+interfaces.NewBlobID().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	backend.AssertExpectations(t)
}

func TestHandler_RecordsMetrics(t *testing.T) {
	ts := newTestServer(t)
	storeBlob(t, ts, []byte("hello"))
	ts.do(t, http.MethodGet, "/api/photos/blobs/"+interfaces.NewBlobID().String(), nil, nil)

	w := httptest.NewRecorder()
	ts.srv.metricsSrv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `sfr_storage_operations_total{database="photos",operation="store",result="ok"} 1`)
	assert.Contains(t, w.Body.String(), `sfr_storage_operations_total{database="photos",operation="get",result="not_found"} 1`)
}

func TestServer_HealthAndDrain(t *testing.T) {
	ts := newTestServer(t)

	steps := []struct {
		target string
		status int
		body   string
	}{
		{target: "/livez", status: http.StatusOK, body: "alive"},
		{target: "/readyz", status: http.StatusOK, body: "ready"},
		{target: "/drain", status: http.StatusOK, body: "draining"},
		{target: "/drain", status: http.StatusOK, body: "already draining"},
		{target: "/readyz", status: http.StatusServiceUnavailable, body: "not ready"},
		{target: "/undrain", status: http.StatusOK, body: "ready"},
		{target: "/undrain", status: http.StatusOK, body: "already ready"},
		{target: "/readyz", status: http.StatusOK, body: "ready"},
	}
	for _, step := range steps {
		resp := ts.do(t, http.MethodGet, step.target, nil, nil)
		assert.Equal(t, step.status, resp.StatusCode, step.target)
		assert.Equal(t, step.body, decodeJSON(t, resp)["status"], step.target)
	}
}
