package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrCheckoutInProgress = errors.New("another checkout is already in progress for this cart")
	ErrCartChanged        = errors.New("cart changed while checkout was committing")
	ErrIllegalTransition  = errors.New("illegal checkout state transition")
)

// ValidationError reports bad caller input. Nothing was changed.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// StockConflict is one cart line that asks for more than the catalog holds.
type StockConflict struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Missing   bool      `json:"missing,omitempty"`
}

// StockConflictError lists every offending line so the caller can adjust quantities.
type StockConflictError struct {
	Conflicts []StockConflict `json:"conflicts"`
}

func (e *StockConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		if c.Missing {
			parts = append(parts, fmt.Sprintf("%s no longer exists", c.ProductID))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s requested %d, available %d", c.ProductID, c.Requested, c.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// PersistenceError means the durable store rejected or lost a write.
// When returned from checkout, no partial order is visible.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MergeConflictError means a concurrent writer holds the target cart. Retry with a fresh read.
type MergeConflictError struct {
	AccountID uuid.UUID
	Err       error
}

func (e *MergeConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cart merge conflict for account %s", e.AccountID)
	}
	return fmt.Sprintf("cart merge conflict for account %s: %v", e.AccountID, e.Err)
}

func (e *MergeConflictError) Unwrap() error {
	return e.Err
}

// PaymentDeclinedError is a business decline from the payment gateway.
// For account checkouts the order is kept with status failed.
type PaymentDeclinedError struct {
	OrderID *uuid.UUID
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	return "payment declined: " + e.Reason
}
