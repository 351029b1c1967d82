package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"secops-dashboard/internal/provider"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/service"
	"secops-dashboard/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta describes list responses.
type Meta struct {
	Total  int    `json:"total"`
	Mode   string `json:"mode,omitempty"`
	Cached bool   `json:"cached,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(logger *zap.Logger, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err to a status code and writes the error envelope.
// Provider failures are reported with a generic message; their detail is
// only logged.
func respondWithError(logger *zap.Logger, w http.ResponseWriter, err error, message string) {
	statusCode := getStatusCode(err)
	logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	if statusCode == http.StatusBadGateway {
		err = errUpstream
	}
	respondWithJSON(logger, w, statusCode, errorResponse(err, message))
}

var errUpstream = errors.New("threat intelligence provider request failed")

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, provider.ErrMissingCredential):
		return http.StatusPreconditionFailed
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, repository.ErrNoData), errors.Is(err, service.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnsupportedSort),
		errors.Is(err, service.ErrEmptyLogFile):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrLogFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, provider.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
