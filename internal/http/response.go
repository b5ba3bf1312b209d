package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"roiboard/internal/core"
	"roiboard/internal/fieldpath"
)

// errorBody is the JSON error envelope for every non-2xx API response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON serializes v with the given status. Encoding failures are logged
// and leave the client with a truncated body; the status is already gone.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain sentinel errors onto HTTP statuses and emits the
// error envelope. Unknown errors become 500 with a generic message so
// internals never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoIdentity):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "UNAUTHENTICATED"})
	case errors.Is(err, core.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "FORBIDDEN"})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, core.ErrStaleApproval):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "STALE_APPROVAL"})
	case errors.Is(err, core.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "INVALID_TRANSITION"})
	case errors.Is(err, fieldpath.ErrInvalid):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "INVALID_FIELD_PATH"})
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "VALIDATION"})
	default:
		slog.Error("Unhandled error in handler", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"})
	}
}

// writeForbidden is the denial for role-level RBAC misses, where there is no
// underlying error to wrap.
func writeForbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: "role not permitted to perform this action", Code: "FORBIDDEN"})
}
