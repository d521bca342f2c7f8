package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrTicketTypeNotFound   = notFound("ticket type")
	ErrUnitNotFound         = notFound("inventory unit")
	ErrRegistrationNotFound = notFound("registration")
	ErrPaymentNotFound      = notFound("payment")

	ErrExhausted          = errors.New("ticket type exhausted")
	ErrOutsideSalesWindow = errors.New("outside sales window")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAlreadyFinalized   = errors.New("already finalized")
	ErrAlreadyConfirmed   = errors.New("already confirmed")
	ErrInvalidUseState    = errors.New("unit is not sold")
	ErrStaleState         = errors.New("state changed concurrently")

	ErrInvalidID              = errors.New("invalid id")
	ErrInvalidQuota           = errors.New("invalid quota")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrInvalidSalesWindow     = errors.New("invalid sales window")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrPaymentMethodRequired  = errors.New("payment method required")
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded")
	ErrRegistrationActive     = errors.New("registration still active")
)

// notFoundError is an ErrNotFound refined with the kind of record that was missing.
type notFoundError struct {
	kind string
}

func notFound(kind string) error {
	return &notFoundError{kind: kind}
}

func (e *notFoundError) Error() string {
	return e.kind + " not found"
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransitionError names an illegal state machine edge.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// FinalizedError is returned when a payment event arrives for a payment that
// already left PENDING. A repeat of the committed outcome is benign; a
// different outcome is a conflict.
type FinalizedError struct {
	PaymentID string
	Current   PaymentStatus
	Requested PaymentStatus
}

func (e *FinalizedError) Error() string {
	if e.Conflicting() {
		return fmt.Sprintf("payment %s already finalized as %s, cannot apply %s", e.PaymentID, e.Current, e.Requested)
	}
	return fmt.Sprintf("payment %s already finalized as %s", e.PaymentID, e.Current)
}

func (e *FinalizedError) Is(target error) bool {
	return target == ErrAlreadyFinalized
}

// Conflicting reports whether the rejected event asked for a different outcome.
func (e *FinalizedError) Conflicting() bool {
	return e.Current != e.Requested
}
