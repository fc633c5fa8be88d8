package rest

import (
	"errors"
	"net/http"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// APIError is the uniform error envelope returned on every non-2xx
// response, modeled on mbflow's own internal/infrastructure/api/rest
// error shape.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
)

// TranslateError maps a solve()/loop error into the uniform APIError
// envelope, the way mbflow's TranslateError maps its own domain errors.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, domain.ErrBacktrackExhausted):
		return NewAPIError("BACKTRACK_EXHAUSTED", "plan backtrack budget exhausted", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrAgentParseFailed):
		return NewAPIError("AGENT_PARSE_FAILED", "an agent's structured output could not be parsed", http.StatusBadGateway)
	case errors.Is(err, domain.ErrExecutorTimeout):
		return NewAPIError("EXECUTOR_TIMEOUT", "code execution exceeded its timeout", http.StatusGatewayTimeout)
	case errors.Is(err, domain.ErrExecutorFailed):
		return NewAPIError("EXECUTOR_FAILED", "code execution failed", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrLLMGenerateFailed):
		return NewAPIError("LLM_GENERATE_FAILED", "the LLM client failed to generate a response", http.StatusBadGateway)
	default:
		return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
	}
}
