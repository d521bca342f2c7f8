package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuota bounds how many units one ticket type may pre-generate.
const MaxQuota = 100_000

// TicketType is a purchasable class of admission with a fixed quota.
type TicketType struct {
	ID         string
	EventID    string
	Name       string
	Quota      int
	Price      decimal.Decimal
	SalesStart time.Time
	SalesEnd   time.Time
	CreatedAt  time.Time
}

// OnSale reports whether t falls inside the half-open sales window [start, end).
func (tt TicketType) OnSale(t time.Time) bool {
	return !t.Before(tt.SalesStart) && t.Before(tt.SalesEnd)
}

// InventoryStatus is a per-state count of a ticket type's units.
type InventoryStatus struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quota        int    `json:"quota"`
	Available    int    `json:"available"`
	Reserved     int    `json:"reserved"`
	Sold         int    `json:"sold"`
	Used         int    `json:"used"`
	Cancelled    int    `json:"cancelled"`
}

// Add increments the counter for state by n.
func (s *InventoryStatus) Add(state UnitState, n int) {
	switch state {
	case UnitAvailable:
		s.Available += n
	case UnitReserved:
		s.Reserved += n
	case UnitSold:
		s.Sold += n
	case UnitUsed:
		s.Used += n
	case UnitCancelled:
		s.Cancelled += n
	}
}

// Committed is the number of units counted against quota.
func (s InventoryStatus) Committed() int {
	return s.Reserved + s.Sold + s.Used
}
