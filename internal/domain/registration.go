package domain

import "time"

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// CancelReason records which path released a registration's unit.
type CancelReason string

const (
	CancelReasonNone             CancelReason = ""
	CancelReasonUser             CancelReason = "user"
	CancelReasonExpired          CancelReason = "expired"
	CancelReasonPaymentCancelled CancelReason = "payment_cancelled"
)

// Registration is a user's claim on one inventory unit.
type Registration struct {
	ID                  string
	UserID              string
	TicketTypeID        string
	InventoryUnitID     string
	Status              RegistrationStatus
	CancelReason        CancelReason
	CreatedAt           time.Time
	ReservationDeadline time.Time
	UpdatedAt           time.Time
}

// Terminal reports whether no further transitions are possible.
func (r Registration) Terminal() bool {
	return r.Status != RegistrationPending
}

// Expired reports whether the hold deadline has passed at now.
func (r Registration) Expired(now time.Time) bool {
	return !now.Before(r.ReservationDeadline)
}

// CheckRegistrationTransition validates a registration status change. Repeating
// a terminal outcome yields ErrAlreadyFinalized and cancelling a confirmed
// registration yields ErrAlreadyConfirmed, so racing finalizers can tell a
// lost race apart from a programming error.
func CheckRegistrationTransition(from, to RegistrationStatus) error {
	switch {
	case from == RegistrationPending && (to == RegistrationConfirmed || to == RegistrationCancelled):
		return nil
	case from == to && from != RegistrationPending:
		return ErrAlreadyFinalized
	case from == RegistrationConfirmed && to == RegistrationCancelled:
		return ErrAlreadyConfirmed
	default:
		return &TransitionError{Entity: "registration", From: string(from), To: string(to)}
	}
}
