package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
)

// errHoldActive marks an expiry attempt on a registration whose deadline has
// not passed yet.
var errHoldActive = errors.New("reservation hold still active")

// ReservationService owns the registration lifecycle. Every mutation locks
// rows in the same order (registration, payment, unit) so concurrent
// finalizers cannot deadlock; whichever commits first wins and the other sees
// a terminal-state error.
type ReservationService struct {
	inventory InventoryRepository
	repo      ReservationRepository
	allocator *Allocator
	clock     clock.Clock
	hold      time.Duration
	logger    logrus.FieldLogger
	notifier  Notifier
	metrics   *metrics.Metrics
}

func NewReservationService(inventory InventoryRepository, repo ReservationRepository, allocator *Allocator, clk clock.Clock, opts ...Option) *ReservationService {
	s := newSettings(opts)
	return &ReservationService{
		inventory: inventory,
		repo:      repo,
		allocator: allocator,
		clock:     clk,
		hold:      s.holdDuration,
		logger:    s.logger.WithField("object", "reservation"),
		notifier:  s.notifier,
		metrics:   s.metrics,
	}
}

type ReserveInput struct {
	TicketTypeID string
	UserID       string
}

// Reservation is a PENDING registration with its claimed unit and payment placeholder.
type Reservation struct {
	Registration domain.Registration
	Payment      domain.Payment
	Unit         domain.InventoryUnit
}

// Reserve claims a unit and creates the PENDING registration and its payment
// placeholder in one transaction. Callers may retry on transient errors;
// domain.ErrExhausted is final until a unit is released.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (Reservation, error) {
	userID := strings.TrimSpace(in.UserID)
	if in.TicketTypeID == "" || userID == "" {
		return Reservation{}, domain.ErrInvalidID
	}

	regID := newID()
	var result Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		alloc, err := s.allocator.Claim(txCtx, in.TicketTypeID, regID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		reg := domain.Registration{
			ID:                  regID,
			UserID:              userID,
			TicketTypeID:        alloc.TicketType.ID,
			InventoryUnitID:     alloc.Unit.ID,
			Status:              domain.RegistrationPending,
			CreatedAt:           now,
			ReservationDeadline: now.Add(s.hold),
			UpdatedAt:           now,
		}
		if err := s.repo.CreateRegistration(txCtx, reg); err != nil {
			return err
		}

		payment := domain.Payment{
			ID:             newID(),
			RegistrationID: reg.ID,
			Amount:         alloc.TicketType.Price,
			Status:         domain.PaymentPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.CreatePayment(txCtx, payment); err != nil {
			return err
		}

		result = Reservation{Registration: reg, Payment: payment, Unit: alloc.Unit}
		return nil
	})
	s.recordClaim(err)
	if err != nil {
		return Reservation{}, err
	}

	s.metrics.Transition(domain.RegistrationPending, domain.CancelReasonNone)
	s.logger.WithFields(logrus.Fields{
		"ticket_type_id":  result.Registration.TicketTypeID,
		"registration_id": result.Registration.ID,
		"unit_id":         result.Unit.ID,
		"serial_number":   result.Unit.SerialNumber,
		"user_id":         userID,
	}).Info("unit reserved")
	return result, nil
}

// recordClaim counts the committed outcome of a Reserve. Requests rejected
// before any unit was looked at are not claims.
func (s *ReservationService) recordClaim(err error) {
	switch {
	case err == nil:
		s.metrics.Claim(metrics.ClaimClaimed)
	case errors.Is(err, domain.ErrExhausted):
		s.metrics.Claim(metrics.ClaimExhausted)
	case errors.Is(err, domain.ErrOutsideSalesWindow):
		s.metrics.Claim(metrics.ClaimOutsideWindow)
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrTicketTypeNotFound):
	default:
		s.metrics.Claim(metrics.ClaimError)
	}
}

type CancelInput struct {
	RegistrationID string
	// Actor is the caller requesting the cancellation; recorded in logs.
	Actor string
}

// CancelRegistration cancels a PENDING registration and returns its unit to
// the pool. A confirmed registration yields domain.ErrAlreadyConfirmed.
func (s *ReservationService) CancelRegistration(ctx context.Context, in CancelInput) (domain.Registration, error) {
	if in.RegistrationID == "" {
		return domain.Registration{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var rel release
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistrationForUpdate(txCtx, in.RegistrationID)
		if err != nil {
			return err
		}
		if err := domain.CheckRegistrationTransition(reg.Status, domain.RegistrationCancelled); err != nil {
			return err
		}
		payment, err := s.repo.GetPaymentByRegistrationForUpdate(txCtx, reg.ID)
		if err != nil {
			return err
		}
		rel, err = s.releaseLocked(txCtx, reg, payment, domain.CancelReasonUser, now)
		return err
	})
	if err != nil {
		return domain.Registration{}, err
	}

	s.afterRelease(ctx, rel, in.Actor)
	return rel.registration, nil
}

// expire cancels a PENDING registration whose hold deadline passed at now.
// It shares the compare-and-transition path with manual cancellation.
func (s *ReservationService) expire(ctx context.Context, registrationID string, now time.Time) error {
	var rel release
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistrationForUpdate(txCtx, registrationID)
		if err != nil {
			return err
		}
		if err := domain.CheckRegistrationTransition(reg.Status, domain.RegistrationCancelled); err != nil {
			return err
		}
		if !reg.Expired(now) {
			return errHoldActive
		}
		payment, err := s.repo.GetPaymentByRegistrationForUpdate(txCtx, reg.ID)
		if err != nil {
			return err
		}
		rel, err = s.releaseLocked(txCtx, reg, payment, domain.CancelReasonExpired, now)
		return err
	})
	if err != nil {
		return err
	}

	s.afterRelease(ctx, rel, "reaper")
	return nil
}

type release struct {
	registration domain.Registration
	payment      domain.Payment
	unit         domain.InventoryUnit
}

// releaseLocked moves a locked PENDING registration to CANCELLED, cancels its
// pending payment and returns the unit to the pool. The registration and
// payment rows must already be locked by the caller's transaction.
func (s *ReservationService) releaseLocked(txCtx context.Context, reg domain.Registration, payment domain.Payment, reason domain.CancelReason, now time.Time) (release, error) {
	if payment.Status != domain.PaymentPending {
		return release{}, &domain.FinalizedError{
			PaymentID: payment.ID,
			Current:   payment.Status,
			Requested: domain.PaymentCancelled,
		}
	}

	unit, err := s.inventory.GetUnitForUpdate(txCtx, reg.InventoryUnitID)
	if err != nil {
		return release{}, err
	}
	if unit.State == domain.UnitSold || unit.State == domain.UnitUsed {
		return release{}, domain.ErrAlreadyConfirmed
	}
	if unit.State != domain.UnitReserved || unit.RegistrationID != reg.ID {
		return release{}, &domain.TransitionError{Entity: "inventory unit", From: string(unit.State), To: string(domain.UnitAvailable)}
	}

	if err := s.inventory.TransitionUnit(txCtx, unit.ID, domain.UnitReserved, domain.UnitAvailable, "", now); err != nil {
		return release{}, err
	}
	if err := s.repo.UpdatePaymentStatus(txCtx, payment.ID, domain.PaymentPending, domain.PaymentCancelled, now); err != nil {
		return release{}, err
	}
	if err := s.repo.UpdateRegistrationStatus(txCtx, reg.ID, domain.RegistrationPending, domain.RegistrationCancelled, reason, now); err != nil {
		return release{}, err
	}

	reg.Status = domain.RegistrationCancelled
	reg.CancelReason = reason
	reg.UpdatedAt = now
	payment.Status = domain.PaymentCancelled
	payment.UpdatedAt = now
	unit.State = domain.UnitAvailable
	unit.RegistrationID = ""
	unit.UpdatedAt = now
	return release{registration: reg, payment: payment, unit: unit}, nil
}

// afterRelease runs once the release transaction committed.
func (s *ReservationService) afterRelease(ctx context.Context, rel release, actor string) {
	s.metrics.Transition(domain.RegistrationCancelled, rel.registration.CancelReason)
	s.logger.WithFields(logrus.Fields{
		"ticket_type_id":  rel.unit.TicketTypeID,
		"registration_id": rel.registration.ID,
		"unit_id":         rel.unit.ID,
		"reason":          rel.registration.CancelReason,
		"actor":           actor,
	}).Info("reservation released")

	if err := s.notifier.UnitReleased(ctx, rel.unit.TicketTypeID, rel.unit.ID); err != nil {
		s.metrics.NotifyError()
		s.logger.WithError(err).WithField("unit_id", rel.unit.ID).Warn("notify unit released")
	}
}

// MarkUsed checks in a sold unit.
func (s *ReservationService) MarkUsed(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	if unitID == "" {
		return domain.InventoryUnit{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.InventoryUnit
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		unit, err := s.inventory.GetUnitForUpdate(txCtx, unitID)
		if err != nil {
			return err
		}
		if unit.State != domain.UnitSold {
			return domain.ErrInvalidUseState
		}
		if err := s.inventory.TransitionUnit(txCtx, unit.ID, domain.UnitSold, domain.UnitUsed, unit.RegistrationID, now); err != nil {
			return err
		}
		unit.State = domain.UnitUsed
		unit.UpdatedAt = now
		result = unit
		return nil
	})
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"unit_id":         result.ID,
		"registration_id": result.RegistrationID,
	}).Info("unit checked in")
	return result, nil
}

type RecordPaymentInput struct {
	RegistrationID string
	Amount         decimal.Decimal
	Method         string
}

// RecordPayment fills in the amount and method of a PENDING registration's
// payment placeholder. It can be done once.
func (s *ReservationService) RecordPayment(ctx context.Context, in RecordPaymentInput) (domain.Payment, error) {
	method := strings.TrimSpace(in.Method)
	if in.RegistrationID == "" {
		return domain.Payment{}, domain.ErrInvalidID
	}
	if in.Amount.IsNegative() || !domain.FitsMoney(in.Amount) {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	if method == "" {
		return domain.Payment{}, domain.ErrPaymentMethodRequired
	}

	now := s.clock.Now()
	var result domain.Payment
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistrationForUpdate(txCtx, in.RegistrationID)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegistrationPending {
			return domain.ErrAlreadyFinalized
		}
		payment, err := s.repo.GetPaymentByRegistrationForUpdate(txCtx, reg.ID)
		if err != nil {
			return err
		}
		if payment.Recorded() {
			return domain.ErrPaymentAlreadyRecorded
		}
		if err := s.repo.RecordPayment(txCtx, payment.ID, in.Amount, method, now); err != nil {
			return err
		}
		payment.Amount = in.Amount
		payment.Method = method
		payment.RecordedAt = &now
		payment.UpdatedAt = now
		result = payment
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"registration_id": result.RegistrationID,
		"payment_id":      result.ID,
		"method":          result.Method,
	}).Info("payment recorded")
	return result, nil
}

func (s *ReservationService) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	if id == "" {
		return domain.Registration{}, domain.ErrInvalidID
	}
	return s.repo.GetRegistration(ctx, id)
}

func (s *ReservationService) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	if id == "" {
		return domain.Payment{}, domain.ErrInvalidID
	}
	return s.repo.GetPayment(ctx, id)
}

// DeleteRegistration removes a CANCELLED registration and its payment.
// Active or confirmed registrations cannot be deleted.
func (s *ReservationService) DeleteRegistration(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidID
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistrationForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegistrationCancelled {
			return domain.ErrRegistrationActive
		}
		payment, err := s.repo.GetPaymentByRegistrationForUpdate(txCtx, reg.ID)
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
		case err != nil:
			return err
		default:
			if err := s.repo.DeletePayment(txCtx, payment.ID); err != nil {
				return err
			}
		}
		return s.repo.DeleteRegistration(txCtx, reg.ID)
	})
	if err != nil {
		return err
	}

	s.logger.WithField("registration_id", id).Info("registration deleted")
	return nil
}
