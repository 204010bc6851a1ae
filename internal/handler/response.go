package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/model"
	"chatbot-auth/pkg/apierror"
)

// Responder writes the JSON envelope for handler errors. ExposeInternalErrors
// adds the raw error text to 500 responses and is meant for development.
type Responder struct {
	ExposeInternalErrors bool
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func (rs Responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var conflict *model.ConflictError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body.Code = "CONFLICT"
		body.Message = conflict.Error()
		body.Details = strings.Join(conflict.Fields, ",")
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
		body.Code = "CONFLICT"
		body.Message = "Identity already exists"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Invalid email or password"
	case errors.Is(err, model.ErrUnauthorized):
		// The reason stays in the log; every client sees the same body.
		slog.Info("authentication rejected",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"reason", model.UnauthorizedReason(err),
		)
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	case errors.Is(err, model.ErrUnavailable):
		slog.Error("store unavailable",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		status = http.StatusServiceUnavailable
		body.Code = "SERVICE_UNAVAILABLE"
		body.Message = "Service temporarily unavailable"
	default:
		slog.Error("unhandled error in writeError",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		if rs.ExposeInternalErrors {
			body.Details = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
