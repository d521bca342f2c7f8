package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
)

// InventoryService administers ticket types and their pre-generated units.
type InventoryService struct {
	repo    InventoryRepository
	clock   clock.Clock
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewInventoryService(repo InventoryRepository, clk clock.Clock, opts ...Option) *InventoryService {
	s := newSettings(opts)
	return &InventoryService{
		repo:    repo,
		clock:   clk,
		logger:  s.logger.WithField("object", "inventory"),
		metrics: s.metrics,
	}
}

type CreateTicketTypeInput struct {
	EventID    string
	Name       string
	Quota      int
	Price      decimal.Decimal
	SalesStart time.Time
	SalesEnd   time.Time
}

func (in CreateTicketTypeInput) validate() error {
	if strings.TrimSpace(in.EventID) == "" {
		return domain.ErrInvalidID
	}
	if in.Quota < 0 || in.Quota > domain.MaxQuota {
		return domain.ErrInvalidQuota
	}
	if in.Price.IsNegative() || !domain.FitsMoney(in.Price) {
		return domain.ErrInvalidPrice
	}
	if in.SalesStart.IsZero() || !in.SalesEnd.After(in.SalesStart) {
		return domain.ErrInvalidSalesWindow
	}
	return nil
}

// CreateTicketType stores the ticket type and generates exactly Quota AVAILABLE
// units, serial numbers 1..Quota, in the same transaction.
func (s *InventoryService) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (domain.TicketType, error) {
	if err := in.validate(); err != nil {
		return domain.TicketType{}, err
	}

	now := s.clock.Now()
	tt := domain.TicketType{
		ID:         newID(),
		EventID:    strings.TrimSpace(in.EventID),
		Name:       strings.TrimSpace(in.Name),
		Quota:      in.Quota,
		Price:      in.Price,
		SalesStart: in.SalesStart.UTC(),
		SalesEnd:   in.SalesEnd.UTC(),
		CreatedAt:  now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateTicketType(txCtx, tt); err != nil {
			return err
		}
		return s.repo.CreateUnits(txCtx, tt.ID, tt.Quota, now)
	})
	if err != nil {
		return domain.TicketType{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_type_id": tt.ID,
		"event_id":       tt.EventID,
		"quota":          tt.Quota,
	}).Info("ticket type created")
	return tt, nil
}

func (s *InventoryService) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	if id == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	return s.repo.GetTicketType(ctx, id)
}

func (s *InventoryService) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListTicketTypes(ctx, eventID)
}

// InventoryStatus returns per-state unit counts. It is a snapshot read.
func (s *InventoryService) InventoryStatus(ctx context.Context, ticketTypeID string) (domain.InventoryStatus, error) {
	if ticketTypeID == "" {
		return domain.InventoryStatus{}, domain.ErrInvalidID
	}
	tt, err := s.repo.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return domain.InventoryStatus{}, err
	}
	counts, err := s.repo.CountUnitsByState(ctx, ticketTypeID)
	if err != nil {
		return domain.InventoryStatus{}, err
	}

	status := domain.InventoryStatus{TicketTypeID: tt.ID, Quota: tt.Quota}
	for state, n := range counts {
		status.Add(state, n)
	}
	s.metrics.InventoryStatus(status)
	return status, nil
}

// VoidUnit retires an AVAILABLE unit. CANCELLED units stay for audit and are
// never handed out again.
func (s *InventoryService) VoidUnit(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	if unitID == "" {
		return domain.InventoryUnit{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.InventoryUnit
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		unit, err := s.repo.GetUnitForUpdate(txCtx, unitID)
		if err != nil {
			return err
		}
		if err := domain.CheckUnitTransition(unit.State, domain.UnitCancelled); err != nil {
			return err
		}
		if err := s.repo.TransitionUnit(txCtx, unit.ID, unit.State, domain.UnitCancelled, "", now); err != nil {
			return err
		}
		unit.State = domain.UnitCancelled
		unit.UpdatedAt = now
		result = unit
		return nil
	})
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_type_id": result.TicketTypeID,
		"unit_id":        result.ID,
	}).Info("inventory unit voided")
	return result, nil
}
