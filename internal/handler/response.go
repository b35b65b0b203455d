package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"agroguardian-api/internal/service"
	"agroguardian-api/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total    int `json:"total,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, Response{
		Success: false,
		Message: message,
	})
}

// getStatusCode maps service errors onto HTTP status codes. Unknown
// errors become 500 without leaking their text.
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrMissingName):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrTooManyRequests), errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrDetectionNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the text safe to show for an error. Internal
// failures all read the same.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidOTP):
		return "Invalid or expired OTP"
	case errors.Is(err, service.ErrMissingName):
		return "Name is required"
	case errors.Is(err, service.ErrInvalidSession):
		return "Invalid or expired session"
	case errors.Is(err, service.ErrTooManyRequests):
		return "Too many OTP requests, try again later"
	case errors.Is(err, service.ErrTooManyAttempts):
		return "Too many failed attempts, request a new OTP"
	case errors.Is(err, service.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, service.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, service.ErrDetectionNotFound):
		return "Detection not found"
	case errors.Is(err, service.ErrNotificationNotFound):
		return "Notification not found"
	default:
		return "Internal server error"
	}
}
