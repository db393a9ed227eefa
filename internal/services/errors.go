package services

import (
	"errors"
	"net/http"
)

// Business-rule and infrastructure error kinds. Handlers map these onto
// HTTP status classes via statusForError.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrMalformedPin = errors.New("pin must be exactly 6 digits")
	ErrPinNotSet    = errors.New("transaction pin not set")
	ErrInvalidPin   = errors.New("invalid transaction pin")

	ErrTwoFactorNotEnabled = errors.New("2FA not enabled")
	ErrNoActiveChallenge   = errors.New("no active verification code")
	ErrOTPExpired          = errors.New("verification code has expired")
	ErrTooManyAttempts     = errors.New("too many failed attempts")
	ErrInvalidOTP          = errors.New("invalid verification code")
	ErrNoBackupCodes       = errors.New("no backup codes available")
	ErrInvalidBackupCode   = errors.New("invalid backup code")

	ErrThrottled = errors.New("rate limit exceeded")
	ErrUpstream  = errors.New("upstream failure")
)

// statusForError resolves the HTTP status class for a business error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMalformedPin):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrPinNotSet):
		return http.StatusForbidden
	case errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrNoActiveChallenge),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrNoBackupCodes),
		errors.Is(err, ErrInvalidBackupCode):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
