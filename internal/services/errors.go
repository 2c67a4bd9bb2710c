package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds returned by the services. Handlers map them to HTTP statuses
// with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("username already in use")
	ErrUnauthorized      = errors.New("unknown user or wrong password")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferTooSoon   = errors.New("transfer to this account was made too recently")
)

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Party names a side of a transfer.
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

// AccountNotFoundError reports which side of a transfer does not exist.
type AccountNotFoundError struct {
	Party Party
	ID    uuid.UUID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("%s account not found", e.Party)
}

func (e *AccountNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
