package httpx

import "net/http"

// Conventional problem responses shared by the domain handlers.

// BadRequest reports a malformed request body or query.
func BadRequest(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusBadRequest, "Bad Request", detail)
}

// Internal reports an opaque server failure without leaking internals.
func Internal(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
