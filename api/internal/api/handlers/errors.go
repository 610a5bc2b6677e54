package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/services"
)

// Use a single instance of Validate, it caches struct info
var validate = validator.New()

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HandleError maps domain and persistence errors to HTTP semantics.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs   validator.ValidationErrors
		tooBig  *http.MaxBytesError
		status  int
		message = err.Error()
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Message: "validation failed", Fields: fields})
		return
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUpdateFailed):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		status = http.StatusConflict
		message = "Conflict: the model was modified by another writer. Please refresh and try again."
	case errors.Is(err, services.ErrServerBooted):
		status = http.StatusConflict
	default:
		// 🛡️ Zero-Trust: Log the real error internally, but return a generic 500
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		status = http.StatusInternalServerError
		message = "Internal server error"
	}
	writeJSON(w, status, errorBody{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
