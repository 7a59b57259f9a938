package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The HTTP layer maps these to status codes.
var (
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrSecurityNotFound     = errors.New("security_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderTerminal        = errors.New("order_already_terminal")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
