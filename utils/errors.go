package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat-backend/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithPipelineError maps pipeline error types to HTTP statuses.
// Provider failures surface the failure kind so the client can tell a
// bad API key from a transient outage.
func RespondWithPipelineError(c *gin.Context, err error) {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		RespondWithError(c, http.StatusBadRequest, "invalid_config", cfgErr.Error(), gin.H{"field": cfgErr.Field})
		return
	}

	var emptyErr *models.EmptyIndexError
	if errors.As(err, &emptyErr) {
		RespondWithError(c, http.StatusConflict, "no_content_ingested", emptyErr.Error(), nil)
		return
	}

	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) {
		details := gin.H{"url": fetchErr.URL}
		if fetchErr.Status != 0 {
			details["upstream_status"] = fetchErr.Status
		}
		RespondWithError(c, http.StatusUnprocessableEntity, "fetch_failed", fetchErr.Error(), details)
		return
	}

	var provErr *models.ProviderError
	if errors.As(err, &provErr) {
		status := http.StatusBadGateway
		code := "provider_error"
		switch provErr.Kind {
		case models.ProviderAuth:
			status = http.StatusUnauthorized
			code = "provider_auth_failed"
		case models.ProviderRateLimit:
			status = http.StatusTooManyRequests
			code = "provider_rate_limited"
		case models.ProviderUnavailable:
			status = http.StatusServiceUnavailable
			code = "provider_unavailable"
		case models.ProviderMalformed:
			status = http.StatusBadGateway
			code = "provider_malformed_response"
		}
		RespondWithError(c, status, code, provErr.Error(), gin.H{"provider": provErr.Provider})
		return
	}

	RespondWithInternalError(c, "unexpected error", gin.H{"error": err.Error()})
}
