package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps a domain error to its HTTP status and error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSONResponse(w, http.StatusBadRequest, models.FieldError(vErr.Field, vErr.Message))
	case errors.Is(err, models.ErrUnknownFlow):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrArtifactNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrArtifactNotFound.Error()))
	case errors.Is(err, models.ErrDocumentNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrDocumentNotFound.Error()))
	case errors.Is(err, models.ErrUnauthenticated):
		writeJSONResponse(w, http.StatusUnauthorized, models.Error(models.ErrUnauthenticated.Error()))
	case errors.Is(err, models.ErrNotMember):
		writeJSONResponse(w, http.StatusForbidden, models.Error(models.ErrNotMember.Error()))
	case errors.Is(err, models.ErrGenerationFailed):
		slog.Error("Server.writeError: generation failed", "path", r.URL.Path, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(models.ErrGenerationFailed.Error()))
	default:
		slog.Error("Server.writeError: unexpected error", "path", r.URL.Path, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// decodeJSON reads a size-limited JSON body into dst. Validation errors raised
// by custom unmarshalers are returned as-is so their field survives.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			return vErr
		}
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("body", "request body is required")
		}
		slog.Warn("Server.decodeJSON: failed to decode JSON", "path", r.URL.Path, "error", err)
		return models.NewValidationError("body", "Invalid JSON format")
	}
	return nil
}
