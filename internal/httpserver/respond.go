package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/domainforge/gateway/internal/apierr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope (spec §7).
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"status"`
}

// RespondError writes a JSON error response with an ad hoc error string.
// Prefer RespondAPIError when the error kind is one of apierr's Kinds.
func RespondError(w http.ResponseWriter, status int, errStr string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   errStr,
		Message: message,
		Status:  status,
	})
}

// RespondAPIError writes the §7 envelope for a typed *apierr.Error. Any other
// error is surfaced as an InternalError/500, never swallowed.
func RespondAPIError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		Respond(w, apiErr.Status(), ErrorResponse{
			Error:   string(apiErr.Kind),
			Message: apiErr.Message,
			Details: apiErr.Details,
			Status:  apiErr.Status(),
		})
		return
	}

	if logger != nil {
		logger.Error("unhandled internal error", "error", err)
	}
	Respond(w, http.StatusInternalServerError, ErrorResponse{
		Error:   string(apierr.KindInternal),
		Message: "an unexpected error occurred",
		Status:  http.StatusInternalServerError,
	})
}
