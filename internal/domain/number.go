package domain

import "github.com/oklog/ulid/v2"

// Order and payment numbers are a short prefix plus a ULID: millisecond
// timestamp up front keeps them roughly sortable by creation time, the random
// tail makes concurrent collisions negligible without a central sequence.
// Uniqueness is still enforced by the storage constraint; callers retry
// generation on a constraint violation.

const (
	orderNoPrefix   = "ORD"
	paymentNoPrefix = "PAY"
)

func NewOrderNo() string {
	return orderNoPrefix + ulid.Make().String()
}

func NewPaymentNo() string {
	return paymentNoPrefix + ulid.Make().String()
}
