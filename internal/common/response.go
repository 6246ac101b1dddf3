package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse standard API response structure
type APIResponse struct {
	Data  interface{} `json:"data"`
	Meta  *Meta       `json:"meta,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
}

// Meta pagination and additional metadata
type Meta struct {
	Page  int   `json:"page,omitempty"`
	Limit int   `json:"limit,omitempty"`
	Total int64 `json:"total,omitempty"`
}

// ErrorInfo error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse returns a successful JSON response
func SuccessResponse(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Data: data,
		Meta: meta,
	})
}

// ErrorResponse returns an error JSON response
func ErrorResponse(c *gin.Context, status int, message string, err error) {
	errInfo := &ErrorInfo{
		Code:    getErrorCode(status),
		Message: message,
	}
	if err != nil {
		errInfo.Details = err.Error()
	}

	c.JSON(status, gin.H{
		"error": errInfo,
	})
}

// FailFromError maps a business error to its HTTP status and writes the response
func FailFromError(c *gin.Context, err error, fallbackMessage string) {
	switch {
	case errors.Is(err, ErrBadRequest) || errors.Is(err, ErrEmptyMessage):
		ErrorResponse(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrNotOwner):
		ErrorResponse(c, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrNotFound) || errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrMessageNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrRangeNotSatisfiable):
		// The caller sets Content-Range with the total size before failing
		ErrorResponse(c, http.StatusRequestedRangeNotSatisfiable, err.Error(), nil)
	case errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken):
		ErrorResponse(c, http.StatusUnauthorized, err.Error(), nil)
	default:
		ErrorResponse(c, http.StatusInternalServerError, fallbackMessage, err)
	}
}

// getErrorCode generates error code from HTTP status
func getErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestedRangeNotSatisfiable:
		return "RANGE_NOT_SATISFIABLE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusInternalServerError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}
