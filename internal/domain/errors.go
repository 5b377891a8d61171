package domain

import "errors"

// Error kinds surfaced by the transfer path. Validation failures wrap
// ErrInvalidRequest so callers can match the whole family with errors.Is.
var (
	ErrInvalidRequest   = errors.New("invalid payment request")
	ErrAccountNotFound  = errors.New("account not found")
	ErrProcessingFailed = errors.New("payment processing failed")
)
