package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/metrics"
	"github.com/theirix/simple-file-repository/photo"
	"github.com/theirix/simple-file-repository/registry"
	"github.com/theirix/simple-file-repository/storage"
)

const (
	// TagsHeader carries blob tags as a url-encoded query string, e.g. "kind=avatar&owner=42".
	TagsHeader = "X-Blob-Tags"

	// maxBodySize is the maximum accepted blob size (64MB).
	maxBodySize = 64 * 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// statusFor maps storage errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrNotFound), errors.Is(err, interfaces.ErrUnknownDatabase):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrConverterUnavailable), errors.Is(err, interfaces.ErrNoExtension):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Handler serves blob operations for every database bound in a registry.
type Handler struct {
	registry *registry.Registry
	metrics  *metrics.MetricsServer
	log      *slog.Logger
}

// NewHandler creates a handler over reg. Operations are recorded in m when it is not nil.
func NewHandler(reg *registry.Registry, m *metrics.MetricsServer, log *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		metrics:  m,
		log:      log,
	}
}

// operation resolves the database, runs fn and records its outcome.
func (h *Handler) operation(w http.ResponseWriter, r *http.Request, name string, fn func(s *photo.PhotoStorage) error) {
	database := r.PathValue("database")
	start := time.Now()

	s, err := h.registry.Get(database)
	if err == nil {
		err = fn(s)
	}
	if h.metrics != nil {
		h.metrics.ObserveOperation(database, name, err, time.Since(start))
	}
	if err == nil {
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Storage operation failed",
			slog.String("database", database),
			slog.String("operation", name),
			"err", err)
	} else {
		h.log.Debug("Storage operation rejected",
			slog.String("database", database),
			slog.String("operation", name),
			slog.Int("status", status),
			"err", err)
	}
	http.Error(w, err.Error(), status)
}

func blobID(r *http.Request) (interfaces.BlobID, error) {
	id, err := interfaces.ParseBlobID(r.PathValue("id"))
	if err != nil {
		return id, badRequest("invalid blob id: %w", err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleStore stores the request body as a new blob.
//
// URL format: POST /api/{database}/blobs[?id=<override id>]
//
// Content-Type, Cache-Control and X-Blob-Tags headers become blob metadata.
// Response: 201 with {"id": "<hex>"}
func (h *Handler) HandleStore(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "store", func(s *photo.PhotoStorage) error {
		opts := interfaces.StoreOptions{
			ContentType: r.Header.Get("Content-Type"),
		}
		if raw := r.URL.Query().Get("id"); raw != "" {
			override, err := interfaces.ParseBlobID(raw)
			if err != nil {
				return badRequest("invalid override id: %w", err)
			}
			opts.OverrideID = &override
		}
		if values, ok := r.Header["Cache-Control"]; ok && len(values) > 0 {
			cacheControl := values[0]
			opts.CacheControl = &cacheControl
		}
		if raw := r.Header.Get(TagsHeader); raw != "" {
			tags, err := url.ParseQuery(raw)
			if err != nil {
				return badRequest("invalid %s header: %w", TagsHeader, err)
			}
			opts.Tags = make(map[string]string, len(tags))
			for k := range tags {
				opts.Tags[k] = tags.Get(k)
			}
		}

		content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: err}
			}
			return badRequest("failed to read request body: %w", err)
		}

		id, err := s.Store(r.Context(), content, opts)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
		return nil
	})
}

// HandleList lists every blob of a database.
//
// URL format: GET /api/{database}/blobs
//
// Response: {"count": n, "ids": ["<hex>", ...]}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "list", func(s *photo.PhotoStorage) error {
		ids, err := s.List(r.Context())
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "ids": ids})
		return nil
	})
}

// HandleGet returns blob content with the backend's mime type.
//
// URL format: GET /api/{database}/blobs/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "get", func(s *photo.PhotoStorage) error {
		id, err := blobID(r)
		if err != nil {
			return err
		}
		content, err := s.Get(r.Context(), id)
		if err != nil {
			return err
		}
		mimeType, err := s.GetMimeType(r.Context(), id)
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
		return nil
	})
}

// HandleExists answers 200 when the blob exists and 404 otherwise, without a body.
//
// URL format: HEAD /api/{database}/blobs/{id}
func (h *Handler) HandleExists(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "exists", func(s *photo.PhotoStorage) error {
		id, err := blobID(r)
		if err != nil {
			return err
		}
		ok, err := s.Exists(r.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return nil
		}
		w.WriteHeader(http.StatusOK)
		return nil
	})
}

// HandleDelete deletes a blob. With ?silent=true a missing blob is not an error.
//
// URL format: DELETE /api/{database}/blobs/{id}[?silent=true]
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "delete", func(s *photo.PhotoStorage) error {
		id, err := blobID(r)
		if err != nil {
			return err
		}
		silent, _ := strconv.ParseBool(r.URL.Query().Get("silent"))
		if silent {
			err = storage.DeleteSilent(r.Context(), s, id)
		} else {
			err = s.Delete(r.Context(), id)
		}
		if err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// HandlePath returns a filesystem path (local) or a pre-signed URL (remote).
// Query parameters such as ResponseContentType are forwarded as URL params.
//
// URL format: GET /api/{database}/blobs/{id}/path
//
// Response: {"path": "...", "local": bool}
func (h *Handler) HandlePath(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "get_path", func(s *photo.PhotoStorage) error {
		id, err := blobID(r)
		if err != nil {
			return err
		}
		var params interfaces.URLParams
		if query := r.URL.Query(); len(query) > 0 {
			params = make(interfaces.URLParams, len(query))
			for k := range query {
				params[k] = query.Get(k)
			}
		}

		path, err := s.GetPath(r.Context(), id, params)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"path": path, "local": s.IsLocal()})
		return nil
	})
}

// HandleThumbnail stores a thumbnail of an image blob.
//
// URL format: POST /api/{database}/blobs/{id}/thumbnail?mime=image/jpeg[&size=200]
//
// Response: 201 with {"id": "<thumbnail hex>"}
func (h *Handler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, "thumbnail", func(s *photo.PhotoStorage) error {
		id, err := blobID(r)
		if err != nil {
			return err
		}
		mimeType := r.URL.Query().Get("mime")
		if mimeType == "" {
			return badRequest("missing mime parameter")
		}
		size := 0
		if raw := r.URL.Query().Get("size"); raw != "" {
			size, err = strconv.Atoi(raw)
			if err != nil || size <= 0 {
				return badRequest("invalid size %q", raw)
			}
		}

		thumbID, err := s.GenerateThumbnail(r.Context(), id, mimeType, size)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": thumbID})
		return nil
	})
}
