package domain

import "fmt"

// ValidationError reports bad input shape or range. Rendered as a 400 at the
// request boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports an absent good/order/payment. Rendered as a 404.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func NotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// PermissionError reports a caller acting on a resource it does not own.
// Rendered as a 403.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return "forbidden: " + e.Action
}

func Forbidden(action string) error {
	return &PermissionError{Action: action}
}

type ConflictReason string

const (
	ReasonInsufficientStock ConflictReason = "insufficient_stock"
	ReasonAmountMismatch    ConflictReason = "amount_mismatch"
	ReasonOrderNotPayable   ConflictReason = "order_not_payable"
	ReasonMethodUnavailable ConflictReason = "method_unavailable"
	ReasonCallbackConflict  ConflictReason = "callback_conflict"
	ReasonIllegalTransition ConflictReason = "illegal_transition"
	ReasonBalanceTooLow     ConflictReason = "balance_too_low"
)

// ConflictError reports a state conflict: the request was well-formed but the
// world disagrees. Rendered as a 409.
type ConflictError struct {
	Reason    ConflictReason
	Message   string
	Available int // populated for insufficient_stock only
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict (%s): %s", e.Reason, e.Message)
}

func InsufficientStock(available int) error {
	return &ConflictError{
		Reason:    ReasonInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock, %d available", available),
		Available: available,
	}
}

func Conflict(reason ConflictReason, format string, args ...any) error {
	return &ConflictError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// InvariantViolationError means a locking bug: a card bound to one order was
// about to be bound to another, or a transition table was bypassed. Never
// user-facing; the transaction aborts and the error is logged at top severity.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Message
}

func InvariantViolation(format string, args ...any) error {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}
