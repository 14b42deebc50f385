package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"taskhub/api/internal/auth"
	"taskhub/api/internal/authpw"
	"taskhub/api/internal/drive"
	"taskhub/api/internal/messaging"
	"taskhub/api/internal/session"
	"taskhub/api/internal/todo"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

var errForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrPasswordTooShort), errors.Is(err, authpw.ErrPasswordMismatch):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, messaging.ErrEmptyText), errors.Is(err, messaging.ErrTextTooLong):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, messaging.ErrNotParticipant):
		return http.StatusForbidden, "NOT_PARTICIPANT", "You are not part of this conversation", nil
	case errors.Is(err, messaging.ErrNotSender):
		return http.StatusForbidden, "NOT_SENDER", "Only the sender can delete a message for everyone", nil
	case errors.Is(err, todo.ErrEmptyBatch), errors.Is(err, todo.ErrUnknownOp), errors.Is(err, todo.ErrTooMany):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, drive.ErrNotConfigured):
		return http.StatusServiceUnavailable, "DRIVE_UNAVAILABLE", "Drive is not configured", nil
	case errors.Is(err, drive.ErrUnknownAction), errors.Is(err, drive.ErrInvalidParams):
		return http.StatusBadRequest, "INVALID_DRIVE_REQUEST", "Invalid drive request", err.Error()
	case errors.Is(err, drive.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", err.Error()
	case errors.Is(err, drive.ErrUploadTimeout):
		return http.StatusGatewayTimeout, "UPLOAD_TIMEOUT", "Upload timed out", err.Error()
	case errors.Is(err, drive.ErrQuotaExceeded):
		return http.StatusInsufficientStorage, "STORAGE_QUOTA_EXCEEDED", "Drive storage quota exceeded", err.Error()
	case errors.Is(err, drive.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Drive item not found", err.Error()
	case errors.Is(err, drive.ErrUnauthorized):
		return http.StatusBadGateway, "DRIVE_AUTH_FAILED", "Drive rejected the service account", err.Error()
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
