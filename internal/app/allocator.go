package app

import (
	"context"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
)

// Allocator hands out inventory units. It never decides quota itself: the
// store's claim primitive only ever moves a unit that is AVAILABLE, and there
// are exactly quota units, so reserved+sold can never exceed quota.
type Allocator struct {
	repo  InventoryRepository
	clock clock.Clock
}

func NewAllocator(repo InventoryRepository, clk clock.Clock, _ ...Option) *Allocator {
	return &Allocator{repo: repo, clock: clk}
}

// Allocation is a claimed unit together with the ticket type it belongs to.
type Allocation struct {
	TicketType domain.TicketType
	Unit       domain.InventoryUnit
}

// Claim moves one AVAILABLE unit of the ticket type to RESERVED, bound to
// registrationID. Run it inside the transaction that creates the registration;
// the claim only counts once that transaction commits.
func (a *Allocator) Claim(ctx context.Context, ticketTypeID, registrationID string) (Allocation, error) {
	if ticketTypeID == "" || registrationID == "" {
		return Allocation{}, domain.ErrInvalidID
	}

	tt, err := a.repo.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return Allocation{}, err
	}

	now := a.clock.Now()
	if !tt.OnSale(now) {
		return Allocation{}, domain.ErrOutsideSalesWindow
	}

	unit, err := a.repo.ClaimAvailableUnit(ctx, ticketTypeID, registrationID, now)
	if err != nil {
		return Allocation{}, err
	}
	return Allocation{TicketType: tt, Unit: unit}, nil
}
