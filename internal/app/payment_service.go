package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
)

// PaymentService applies external payment outcomes to registrations.
// Confirmation and cancellation are idempotent: a replay of the committed
// outcome returns a *domain.FinalizedError with Conflicting() false.
type PaymentService struct {
	inventory    InventoryRepository
	repo         ReservationRepository
	reservations *ReservationService
	clock        clock.Clock
	logger       logrus.FieldLogger
	notifier     Notifier
	metrics      *metrics.Metrics
}

func NewPaymentService(inventory InventoryRepository, repo ReservationRepository, reservations *ReservationService, clk clock.Clock, opts ...Option) *PaymentService {
	s := newSettings(opts)
	return &PaymentService{
		inventory:    inventory,
		repo:         repo,
		reservations: reservations,
		clock:        clk,
		logger:       s.logger.WithField("object", "payment"),
		notifier:     s.notifier,
		metrics:      s.metrics,
	}
}

// PaymentOutcome is the committed state after a payment event was applied.
type PaymentOutcome struct {
	Payment      domain.Payment
	Registration domain.Registration
	Unit         domain.InventoryUnit
}

func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID string) (PaymentOutcome, error) {
	return s.ApplyPaymentEvent(ctx, paymentID, domain.PaymentConfirmed)
}

func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string) (PaymentOutcome, error) {
	return s.ApplyPaymentEvent(ctx, paymentID, domain.PaymentCancelled)
}

// ApplyPaymentEvent moves a PENDING payment to status and its registration
// and unit along with it. It races the reaper and user cancellation on the
// registration row lock; the first transaction to commit decides the outcome.
func (s *PaymentService) ApplyPaymentEvent(ctx context.Context, paymentID string, status domain.PaymentStatus) (PaymentOutcome, error) {
	if paymentID == "" {
		return PaymentOutcome{}, domain.ErrInvalidID
	}
	if !status.Final() {
		return PaymentOutcome{}, &domain.TransitionError{Entity: "payment", From: string(domain.PaymentPending), To: string(status)}
	}

	// Registration id is immutable, so an unlocked read is enough to find
	// which registration row to lock first.
	snapshot, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if snapshot.Status != domain.PaymentPending {
		return PaymentOutcome{}, &domain.FinalizedError{PaymentID: paymentID, Current: snapshot.Status, Requested: status}
	}

	now := s.clock.Now()
	var out PaymentOutcome
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistrationForUpdate(txCtx, snapshot.RegistrationID)
		if err != nil {
			return err
		}
		payment, err := s.repo.GetPaymentForUpdate(txCtx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentPending {
			return &domain.FinalizedError{PaymentID: paymentID, Current: payment.Status, Requested: status}
		}

		if status == domain.PaymentCancelled {
			rel, err := s.reservations.releaseLocked(txCtx, reg, payment, domain.CancelReasonPaymentCancelled, now)
			if err != nil {
				return err
			}
			out = PaymentOutcome{Payment: rel.payment, Registration: rel.registration, Unit: rel.unit}
			return nil
		}

		out, err = s.confirmLocked(txCtx, reg, payment, now)
		return err
	})
	if err != nil {
		return PaymentOutcome{}, err
	}

	if status == domain.PaymentCancelled {
		s.reservations.afterRelease(ctx, release{registration: out.Registration, payment: out.Payment, unit: out.Unit}, "payment")
		return out, nil
	}

	s.metrics.Transition(domain.RegistrationConfirmed, domain.CancelReasonNone)
	s.logger.WithFields(logrus.Fields{
		"payment_id":      out.Payment.ID,
		"registration_id": out.Registration.ID,
		"unit_id":         out.Unit.ID,
		"ticket_type_id":  out.Unit.TicketTypeID,
	}).Info("payment confirmed")

	if err := s.notifier.UnitSold(ctx, out.Unit.TicketTypeID, out.Unit.ID); err != nil {
		s.metrics.NotifyError()
		s.logger.WithError(err).WithField("unit_id", out.Unit.ID).Warn("notify unit sold")
	}
	return out, nil
}

func (s *PaymentService) confirmLocked(txCtx context.Context, reg domain.Registration, payment domain.Payment, now time.Time) (PaymentOutcome, error) {
	if err := domain.CheckRegistrationTransition(reg.Status, domain.RegistrationConfirmed); err != nil {
		return PaymentOutcome{}, err
	}

	unit, err := s.inventory.GetUnitForUpdate(txCtx, reg.InventoryUnitID)
	if err != nil {
		return PaymentOutcome{}, err
	}
	if err := domain.CheckUnitTransition(unit.State, domain.UnitSold); err != nil {
		return PaymentOutcome{}, err
	}
	if unit.RegistrationID != reg.ID {
		return PaymentOutcome{}, domain.ErrStaleState
	}

	if err := s.inventory.TransitionUnit(txCtx, unit.ID, domain.UnitReserved, domain.UnitSold, reg.ID, now); err != nil {
		return PaymentOutcome{}, err
	}
	if err := s.repo.UpdateRegistrationStatus(txCtx, reg.ID, domain.RegistrationPending, domain.RegistrationConfirmed, domain.CancelReasonNone, now); err != nil {
		return PaymentOutcome{}, err
	}
	if err := s.repo.UpdatePaymentStatus(txCtx, payment.ID, domain.PaymentPending, domain.PaymentConfirmed, now); err != nil {
		return PaymentOutcome{}, err
	}

	reg.Status = domain.RegistrationConfirmed
	reg.UpdatedAt = now
	payment.Status = domain.PaymentConfirmed
	payment.UpdatedAt = now
	unit.State = domain.UnitSold
	unit.UpdatedAt = now
	return PaymentOutcome{Payment: payment, Registration: reg, Unit: unit}, nil
}
