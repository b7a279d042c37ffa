package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrAPI            ErrorType = "API_ERROR"
	ErrNetwork        ErrorType = "NETWORK_ERROR"
	ErrRiskReject     ErrorType = "RISK_REJECT"
	ErrStrategy       ErrorType = "STRATEGY_ERROR"
	ErrOrderSubmit    ErrorType = "ORDER_SUBMIT_FAILED"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"` // HTTP status from the exchange, when applicable
	Body       string    `json:"-"`                     // raw error body from the exchange
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: msg,
		Cause:   cause,
	}
}

// NewAPIError wraps a non-retryable exchange response (4xx/5xx other than 429).
func NewAPIError(status int, msg, body string) *AppError {
	return &AppError{
		Type:       ErrAPI,
		Message:    msg,
		StatusCode: status,
		Body:       body,
	}
}

func NewAuthFailed(msg string, cause error) *AppError {
	return New(ErrAuthFailed, msg, cause)
}

func NewNetwork(msg string, cause error) *AppError {
	return New(ErrNetwork, msg, cause)
}

// As extracts an *AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether the error is a transient transport failure
// that a retry with backoff may resolve. API errors are never retryable:
// they indicate a client-side or permanent condition.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == ErrNetwork
}

// IsAPIError reports whether the error carries an exchange status code.
func IsAPIError(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == ErrAPI
}
