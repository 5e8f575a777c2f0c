// Package handler provides HTTP handlers for the application.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jkindrix/callbridge/internal/middleware"

	apperrors "github.com/jkindrix/callbridge/internal/errors"
	"github.com/jkindrix/callbridge/internal/repository"
)

// Response is the envelope every JSON endpoint uses.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// JSON writes a JSON response with the appropriate headers.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	JSON(w, r, status, Response{Success: true, Data: data})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, Response{Success: false, Error: message})
}

// FailFromError maps an application error onto an HTTP response,
// preserving the error code for API clients.
func FailFromError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		JSON(w, r, http.StatusNotFound, Response{
			Success: false,
			Error:   "not found",
			Code:    string(apperrors.CodeNotFound),
		})
		return
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), Response{
			Success: false,
			Error:   appErr.Message,
			Code:    string(appErr.Code),
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Error:   "internal server error",
		Code:    string(apperrors.CodeInternal),
	})
}
