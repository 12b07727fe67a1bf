package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/journal"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error   ErrorDetails `json:"error"`
	Success bool         `json:"success"`
}

// ErrorDetails contains detailed error information
type ErrorDetails struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

var (
	// errQueueFull is returned when no more runs can be accepted
	errQueueFull = errors.New("run queue is full")
	// errForeignOrigin rejects browser requests from other sites
	errForeignOrigin = errors.New("cross-origin requests are not allowed")
	// errUnsupportedMediaType rejects request bodies that are not JSON
	errUnsupportedMediaType = errors.New("request body must be application/json")
)

// RespondWithError sends a structured error response
func RespondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := string(cErrors.GetType(err))

	switch {
	case errors.Is(err, journal.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, errQueueFull):
		status = http.StatusServiceUnavailable
		code = "queue_full"
	case errors.Is(err, errForeignOrigin):
		status = http.StatusForbidden
		code = "forbidden_origin"
	case errors.Is(err, errUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
		code = "unsupported_media_type"
	case errors.Is(err, cErrors.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	c.JSON(status, ErrorResponse{
		Success: false,
		Error: ErrorDetails{
			Code:    code,
			Message: err.Error(),
			Context: cErrors.GetDetails(err),
		},
	})
}
