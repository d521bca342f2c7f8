package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

func (s *Store) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, event_id, name, quota, price, sales_start, sales_end, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q(ctx).ExecContext(ctx, stmt,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Quota,
		tt.Price.String(),
		toMillis(tt.SalesStart),
		toMillis(tt.SalesEnd),
		toMillis(tt.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

// CreateUnits inserts quota AVAILABLE units with serial numbers 1..quota.
func (s *Store) CreateUnits(ctx context.Context, ticketTypeID string, quota int, now time.Time) error {
	const stmt = `
INSERT INTO inventory_units (id, ticket_type_id, serial_number, state, registration_id, updated_at)
VALUES (?, ?, ?, 'AVAILABLE', NULL, ?)`

	for serial := 1; serial <= quota; serial++ {
		if _, err := s.q(ctx).ExecContext(ctx, stmt, uuid.NewString(), ticketTypeID, serial, toMillis(now)); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrTicketTypeNotFound
			}
			return fmt.Errorf("create unit %d: %w", serial, err)
		}
	}
	return nil
}

const ticketTypeColumns = `id, event_id, name, quota, price, sales_start, sales_end, created_at`

func (s *Store) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ?`, id)
	tt, err := scanTicketType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	if err != nil {
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

func (s *Store) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE event_id = ? ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	out := []domain.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		out = append(out, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicketType(row scanner) (domain.TicketType, error) {
	var (
		tt                           domain.TicketType
		price                        string
		salesStart, salesEnd, create int64
	)
	if err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Quota, &price, &salesStart, &salesEnd, &create); err != nil {
		return domain.TicketType{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.TicketType{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	tt.Price = p
	tt.SalesStart = fromMillis(salesStart)
	tt.SalesEnd = fromMillis(salesEnd)
	tt.CreatedAt = fromMillis(create)
	return tt, nil
}

const unitColumns = `id, ticket_type_id, serial_number, state, registration_id, updated_at`

// ClaimAvailableUnit binds the lowest-serial AVAILABLE unit to registrationID.
func (s *Store) ClaimAvailableUnit(ctx context.Context, ticketTypeID, registrationID string, now time.Time) (domain.InventoryUnit, error) {
	const stmt = `
UPDATE inventory_units
SET state = 'RESERVED', registration_id = ?, updated_at = ?
WHERE id = (
    SELECT id FROM inventory_units
    WHERE ticket_type_id = ? AND state = 'AVAILABLE'
    ORDER BY serial_number
    LIMIT 1
) AND state = 'AVAILABLE'
RETURNING ` + unitColumns

	row := s.q(ctx).QueryRowContext(ctx, stmt, registrationID, toMillis(now), ticketTypeID)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryUnit{}, domain.ErrExhausted
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InventoryUnit{}, domain.ErrStaleState
		}
		return domain.InventoryUnit{}, fmt.Errorf("claim unit: %w", err)
	}
	return unit, nil
}

// GetUnitForUpdate reads a unit inside the caller's transaction. The write
// lock taken at BEGIN IMMEDIATE already excludes other writers.
func (s *Store) GetUnitForUpdate(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+unitColumns+` FROM inventory_units WHERE id = ?`, unitID)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryUnit{}, domain.ErrUnitNotFound
	}
	if err != nil {
		return domain.InventoryUnit{}, fmt.Errorf("get unit: %w", err)
	}
	return unit, nil
}

func (s *Store) TransitionUnit(ctx context.Context, unitID string, from, to domain.UnitState, registrationID string, now time.Time) error {
	const stmt = `
UPDATE inventory_units
SET state = ?, registration_id = ?, updated_at = ?
WHERE id = ? AND state = ?`

	ok, err := s.execOne(ctx, stmt, string(to), nullString(registrationID), toMillis(now), unitID, string(from))
	if err != nil {
		return fmt.Errorf("transition unit: %w", err)
	}
	if ok {
		return nil
	}
	return s.missOrStale(ctx, "inventory_units", unitID, domain.ErrUnitNotFound)
}

func (s *Store) CountUnitsByState(ctx context.Context, ticketTypeID string) (map[domain.UnitState]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT state, COUNT(*) FROM inventory_units WHERE ticket_type_id = ? GROUP BY state`, ticketTypeID)
	if err != nil {
		return nil, fmt.Errorf("count units: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.UnitState]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan unit count: %w", err)
		}
		counts[domain.UnitState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count units: %w", err)
	}
	return counts, nil
}

func scanUnit(row scanner) (domain.InventoryUnit, error) {
	var (
		u       domain.InventoryUnit
		state   string
		regID   sql.NullString
		updated int64
	)
	if err := row.Scan(&u.ID, &u.TicketTypeID, &u.SerialNumber, &state, &regID, &updated); err != nil {
		return domain.InventoryUnit{}, err
	}
	u.State = domain.UnitState(state)
	u.RegistrationID = regID.String
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}
