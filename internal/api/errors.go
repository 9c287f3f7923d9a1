package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custobar-insights/internal/apperrors"
)

// ErrorBody is the payload of an API error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service error to its HTTP response. Categorized
// errors carry their own status code and machine-readable code; pipeline
// stage failures additionally report the failed stage.
func respondServiceError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatusCode(err)

	body := ErrorBody{
		Code:    ErrCodeInternalError,
		Message: "An internal error occurred",
	}

	var categorized *apperrors.CategorizedError
	if errors.As(err, &categorized) {
		body.Code = categorized.Code
		body.Message = categorized.Message
	}

	var stageErr *apperrors.StageError
	if errors.As(err, &stageErr) {
		body.Stage = stageErr.Stage
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: body})
}
