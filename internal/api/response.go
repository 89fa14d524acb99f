package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/zaloga/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps a service error to its HTTP status. Unknown errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *model.ValidationError
		ise *model.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve):
		body := map[string]string{"error": ve.Error()}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		jsonResponse(w, http.StatusBadRequest, body)
	case errors.As(err, &ise):
		jsonResponse(w, http.StatusConflict, map[string]any{
			"error":           ise.Error(),
			"material_number": ise.MaterialNumber,
			"available":       ise.Available,
			"requested":       ise.Requested,
		})
	case errors.Is(err, model.ErrForbidden):
		jsonError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, target any) error {
	if err := decodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryInt parses an optional integer query parameter, returning def when it
// is missing or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
