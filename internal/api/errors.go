package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/banana-api/internal/api/shared"
	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/service/auth"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/phrazzld/banana-api/internal/upload"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var maxBytes *http.MaxBytesError

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidAPIKey),
		errors.Is(err, auth.ErrMissingAPIKey):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Upload errors
	case errors.Is(err, upload.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrPayloadTooLarge),
		errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge

	// Upstream errors
	case errors.Is(err, generation.ErrProviderUnavailable),
		errors.Is(err, generation.ErrProviderRejected):
		return http.StatusBadGateway

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, auth.ErrMissingAPIKey):
		return "API key required"
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return "Invalid API key"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Callback token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid callback token"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, upload.ErrUnsupportedMediaType):
		return "Unsupported media type"
	case errors.Is(err, upload.ErrPayloadTooLarge),
		errors.As(err, &maxBytes):
		return "Uploaded file is too large"

	case errors.Is(err, generation.ErrProviderRejected):
		if msg := generation.ProviderMessage(err); msg != "" {
			return msg
		}
		return "Image provider rejected the request"
	case errors.Is(err, generation.ErrProviderUnavailable):
		return "Image provider unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. fallbackMsg
// replaces the generic message for errors that map to 500.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallbackMsg != "" {
		msg = fallbackMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'CreateTaskRequest.Prompt' Error:Field validation for 'Prompt' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url":
		return "invalid URL"
	case "uuid":
		return "invalid UUID"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
