package payment

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrMissingField         = errors.New("missing required field")
	ErrInvalidState         = errors.New("invalid netgiro payment state")
	ErrMissingTransactionID = errors.New("missing netgiro transaction id")
	ErrInvalidTotal         = errors.New("invalid order total")
	ErrInvalidURL           = errors.New("invalid url")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// APIError reports a provider call that was attempted and failed.
type APIError struct {
	Op     string
	Result *Result
}

func (e *APIError) Error() string {
	if e.Result == nil {
		return fmt.Sprintf("netgiro %s failed", e.Op)
	}
	return fmt.Sprintf("netgiro %s failed: %s", e.Op, e.Result.Message)
}

func (e *APIError) Unwrap() error {
	if e.Result == nil {
		return nil
	}
	return e.Result.TransportErr
}
