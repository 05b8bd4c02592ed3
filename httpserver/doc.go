/*
Package httpserver implements an HTTP service over the databases bound in a registry.

# Blob API

	POST   /api/{database}/blobs                      store the body, 201 {"id": "..."}
	GET    /api/{database}/blobs                      {"count": n, "ids": [...]}
	GET    /api/{database}/blobs/{id}                 blob content with its mime type
	HEAD   /api/{database}/blobs/{id}                 200 if the blob exists, 404 otherwise
	DELETE /api/{database}/blobs/{id}[?silent=true]   204
	GET    /api/{database}/blobs/{id}/path            {"path": "...", "local": bool}
	POST   /api/{database}/blobs/{id}/thumbnail       ?mime=image/jpeg&size=200, 201 {"id": "..."}

Identifiers are 32 lowercase hex digits; canonical dashed UUIDs are accepted too.
A store takes its content type from Content-Type, its cache control from
Cache-Control and its tags from X-Blob-Tags ("k1=v1&k2=v2"). The query
parameter id stores under a caller-chosen identifier. Query parameters of the
path endpoint, such as ResponseContentType, are embedded into pre-signed URLs.

# Errors

Storage errors map onto status codes:

  - ErrNotFound, ErrUnknownDatabase: 404
  - ErrAlreadyExists: 409
  - ErrNotInitialized: 503
  - malformed identifiers and ErrInvalidParams: 400
  - ErrConverterUnavailable, ErrNoExtension: 422
  - anything else: 500

# Operations

  - /livez, /readyz: liveness and readiness probes
  - /drain, /undrain: toggle readiness for load balancers
  - /debug: pprof, when enabled
  - /metrics on the metrics address: sfr_storage_operations_total and sfr_storage_operation_duration_seconds
*/
package httpserver
