package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes shared by every layer.
const (
	CodeValidation       = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// Reasons attached to UNAUTHORIZED errors raised while verifying a token.
const (
	ReasonMissing   = "Missing"
	ReasonMalformed = "Malformed"
	ReasonExpired   = "Expired"
	ReasonInvalid   = "Invalid"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Reason  string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Domain errors. Compare with errors.Is.
var (
	ErrDuplicateEmail     = &AppError{Code: CodeConflict, Message: "email already registered"}
	ErrDuplicateUsername  = &AppError{Code: CodeConflict, Message: "username already taken"}
	ErrInvalidCredentials = &AppError{Code: CodeValidation, Message: "invalid email or password"}
	ErrUserNotFound       = &AppError{Code: CodeNotFound, Message: "user not found"}
	ErrPostNotFound       = &AppError{Code: CodeNotFound, Message: "post not found"}
	ErrSelfFollow         = &AppError{Code: CodeValidation, Message: "you cannot follow yourself"}
	ErrAlreadyFollowing   = &AppError{Code: CodeConflict, Message: "already following this user"}
	ErrNotFollowing       = &AppError{Code: CodeConflict, Message: "not following this user"}
	ErrEmptyText          = &AppError{Code: CodeValidation, Message: "text must not be empty"}

	ErrTokenMissing   = &AppError{Code: CodeUnauthorized, Reason: ReasonMissing, Message: "authorization header required"}
	ErrTokenMalformed = &AppError{Code: CodeUnauthorized, Reason: ReasonMalformed, Message: "malformed authorization token"}
	ErrTokenExpired   = &AppError{Code: CodeUnauthorized, Reason: ReasonExpired, Message: "token expired"}
	ErrTokenInvalid   = &AppError{Code: CodeUnauthorized, Reason: ReasonInvalid, Message: "invalid token"}
)

// Predefined error constructors
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewStoreUnavailableError wraps a datastore timeout or connection failure.
func NewStoreUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "datastore unavailable, try again",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// IsCode reports whether err is an AppError carrying code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// RespondWithError creates a standardized error response.
// Wrapped causes are never echoed to the client.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error:   appErr.Message,
			Message: appErr.Message,
			Code:    appErr.Code,
			Reason:  appErr.Reason,
		}
	} else {
		response = ErrorResponse{
			Error:   err.Error(),
			Message: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
