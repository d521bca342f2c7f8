package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

// InventoryRepository is the durable store of ticket types and their units.
//
// ClaimAvailableUnit must hand each AVAILABLE unit to exactly one caller under
// concurrency and return domain.ErrExhausted when none is left. TransitionUnit
// is a compare-and-set on the unit's current state; registrationID is the
// binding after the transition ("" clears it).
type InventoryRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateTicketType(ctx context.Context, tt domain.TicketType) error
	CreateUnits(ctx context.Context, ticketTypeID string, quota int, now time.Time) error
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)
	ClaimAvailableUnit(ctx context.Context, ticketTypeID, registrationID string, now time.Time) (domain.InventoryUnit, error)
	GetUnitForUpdate(ctx context.Context, unitID string) (domain.InventoryUnit, error)
	TransitionUnit(ctx context.Context, unitID string, from, to domain.UnitState, registrationID string, now time.Time) error
	CountUnitsByState(ctx context.Context, ticketTypeID string) (map[domain.UnitState]int, error)
}

// ReservationRepository stores registrations and their payments. Status
// updates are compare-and-set on the expected current status.
type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateRegistration(ctx context.Context, reg domain.Registration) error
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
	GetRegistrationForUpdate(ctx context.Context, id string) (domain.Registration, error)
	UpdateRegistrationStatus(ctx context.Context, id string, from, to domain.RegistrationStatus, reason domain.CancelReason, now time.Time) error
	DeleteRegistration(ctx context.Context, id string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error)

	CreatePayment(ctx context.Context, p domain.Payment) error
	GetPayment(ctx context.Context, id string) (domain.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id string) (domain.Payment, error)
	GetPaymentByRegistrationForUpdate(ctx context.Context, registrationID string) (domain.Payment, error)
	RecordPayment(ctx context.Context, id string, amount decimal.Decimal, method string, now time.Time) error
	UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus, now time.Time) error
	DeletePayment(ctx context.Context, id string) error
}

// Notifier is told about inventory changes after they commit.
type Notifier interface {
	UnitReleased(ctx context.Context, ticketTypeID, unitID string) error
	UnitSold(ctx context.Context, ticketTypeID, unitID string) error
}

type nopNotifier struct{}

func (nopNotifier) UnitReleased(context.Context, string, string) error { return nil }
func (nopNotifier) UnitSold(context.Context, string, string) error     { return nil }
