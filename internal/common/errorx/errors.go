package errorx

import (
	"fmt"
	"net/http"
)

// ErrorCategory groups errors for the HTTP layer and for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "authentication"
	CategoryForbidden  ErrorCategory = "authorization"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryExternal   ErrorCategory = "external"
	CategoryWebhook    ErrorCategory = "malformed_webhook"
	CategoryInternal   ErrorCategory = "internal"
)

// APIError is a structured error carrying an HTTP status. Domain packages
// return these (or wrap them); handlers pass them to Respond.
type APIError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Is matches on the error code, so a WithMessage copy still compares
// equal to its sentinel under errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of the error with a more specific message.
func (e *APIError) WithMessage(format string, args ...any) *APIError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

var (
	ErrInvalidInput = &APIError{
		Code: "E1001", Message: "invalid input", Category: CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}
	ErrUnauthorized = &APIError{
		Code: "E2001", Message: "authentication required", Category: CategoryAuth,
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrInvalidCredentials = &APIError{
		Code: "E2002", Message: "invalid email or password", Category: CategoryAuth,
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrPermissionDenied = &APIError{
		Code: "E3001", Message: "permission denied", Category: CategoryForbidden,
		HTTPStatus: http.StatusForbidden,
	}
	ErrNotTeamMember = &APIError{
		Code: "E3002", Message: "not a member of this team", Category: CategoryForbidden,
		HTTPStatus: http.StatusForbidden,
	}
	ErrNotFound = &APIError{
		Code: "E4001", Message: "resource not found", Category: CategoryNotFound,
		HTTPStatus: http.StatusNotFound,
	}
	ErrConflict = &APIError{
		Code: "E4091", Message: "resource already exists", Category: CategoryConflict,
		HTTPStatus: http.StatusConflict,
	}
	ErrExternalService = &APIError{
		Code: "E5031", Message: "upstream service unavailable", Category: CategoryExternal,
		HTTPStatus: http.StatusServiceUnavailable,
	}
	ErrWebhookSignature = &APIError{
		Code: "E2401", Message: "webhook signature verification failed", Category: CategoryWebhook,
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrWebhookPayload = &APIError{
		Code: "E4002", Message: "webhook payload could not be parsed", Category: CategoryWebhook,
		HTTPStatus: http.StatusBadRequest,
	}
	ErrInternal = &APIError{
		Code: "E5001", Message: "internal server error", Category: CategoryInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
)
