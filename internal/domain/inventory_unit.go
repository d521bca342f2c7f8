package domain

import "time"

type UnitState string

const (
	UnitAvailable UnitState = "AVAILABLE"
	UnitReserved  UnitState = "RESERVED"
	UnitSold      UnitState = "SOLD"
	UnitCancelled UnitState = "CANCELLED"
	UnitUsed      UnitState = "USED"
)

// UnitStates lists every unit state in reporting order.
var UnitStates = []UnitState{UnitAvailable, UnitReserved, UnitSold, UnitUsed, UnitCancelled}

var unitEdges = map[UnitState][]UnitState{
	UnitAvailable: {UnitReserved, UnitCancelled},
	UnitReserved:  {UnitAvailable, UnitSold},
	UnitSold:      {UnitUsed},
}

// InventoryUnit is one serialized sellable instance within a ticket type's quota.
type InventoryUnit struct {
	ID             string
	TicketTypeID   string
	SerialNumber   int
	State          UnitState
	RegistrationID string // empty when unbound
	UpdatedAt      time.Time
}

// Bound reports whether a registration currently holds the unit.
func (u InventoryUnit) Bound() bool {
	return u.RegistrationID != ""
}

// CheckUnitTransition validates a unit state change.
func CheckUnitTransition(from, to UnitState) error {
	for _, next := range unitEdges[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Entity: "inventory unit", From: string(from), To: string(to)}
}
