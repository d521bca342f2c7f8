package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

type InventoryRepository struct {
	conn
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{conn: conn{pool: pool}}
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *InventoryRepository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, event_id, name, quota, price, sales_start, sales_end, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Quota,
		tt.Price.String(),
		tt.SalesStart,
		tt.SalesEnd,
		tt.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) || isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

// CreateUnits generates serial numbers 1..quota in one statement.
func (r *InventoryRepository) CreateUnits(ctx context.Context, ticketTypeID string, quota int, now time.Time) error {
	const stmt = `
INSERT INTO inventory_units (id, ticket_type_id, serial_number, state, updated_at)
SELECT gen_random_uuid(), $1, s, 'AVAILABLE', $2
FROM generate_series(1, $3::int) AS s`

	tag, err := r.exec(ctx, stmt, ticketTypeID, now, quota)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrTicketTypeNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create units: %w", err)
	}
	if int(tag.RowsAffected()) != quota {
		return fmt.Errorf("create units: inserted %d of %d", tag.RowsAffected(), quota)
	}
	return nil
}

const ticketTypeColumns = `id, event_id, name, quota, price::text, sales_start, sales_end, created_at`

func (r *InventoryRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	row := r.queryRow(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id)
	tt, err := scanTicketType(row)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketType{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

func (r *InventoryRepository) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	rows, err := r.query(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE event_id = $1 ORDER BY created_at, id`, eventID)
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

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var (
		tt    domain.TicketType
		price string
	)
	if err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Quota, &price, &tt.SalesStart, &tt.SalesEnd, &tt.CreatedAt); err != nil {
		return domain.TicketType{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.TicketType{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	tt.Price = p
	return tt, nil
}

const unitColumns = `id, ticket_type_id, serial_number, state, COALESCE(registration_id::text, ''), updated_at`

// ClaimAvailableUnit binds the lowest-serial AVAILABLE unit to registrationID.
// SKIP LOCKED lets concurrent claimers each take a different row instead of
// queueing behind the same one.
func (r *InventoryRepository) ClaimAvailableUnit(ctx context.Context, ticketTypeID, registrationID string, now time.Time) (domain.InventoryUnit, error) {
	const stmt = `
UPDATE inventory_units
SET state = 'RESERVED', registration_id = $2, updated_at = $3
WHERE id = (
    SELECT id FROM inventory_units
    WHERE ticket_type_id = $1 AND state = 'AVAILABLE'
    ORDER BY serial_number
    LIMIT 1
    FOR UPDATE SKIP LOCKED
) AND state = 'AVAILABLE'
RETURNING ` + unitColumns

	unit, err := scanUnit(r.queryRow(ctx, stmt, ticketTypeID, registrationID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InventoryUnit{}, domain.ErrExhausted
		}
		if isInvalidUUID(err) {
			return domain.InventoryUnit{}, domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.InventoryUnit{}, domain.ErrStaleState
		}
		return domain.InventoryUnit{}, fmt.Errorf("claim unit: %w", err)
	}
	return unit, nil
}

func (r *InventoryRepository) GetUnitForUpdate(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	unit, err := scanUnit(r.queryRow(ctx, `SELECT `+unitColumns+` FROM inventory_units WHERE id = $1 FOR UPDATE`, unitID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.InventoryUnit{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InventoryUnit{}, domain.ErrUnitNotFound
		}
		return domain.InventoryUnit{}, fmt.Errorf("get unit: %w", err)
	}
	return unit, nil
}

func (r *InventoryRepository) TransitionUnit(ctx context.Context, unitID string, from, to domain.UnitState, registrationID string, now time.Time) error {
	const stmt = `
UPDATE inventory_units
SET state = $3, registration_id = NULLIF($4, '')::uuid, updated_at = $5
WHERE id = $1 AND state = $2`

	tag, err := r.exec(ctx, stmt, unitID, string(from), string(to), registrationID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("transition unit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrStale(ctx, "inventory_units", unitID, domain.ErrUnitNotFound)
}

func (r *InventoryRepository) CountUnitsByState(ctx context.Context, ticketTypeID string) (map[domain.UnitState]int, error) {
	rows, err := r.query(ctx, `SELECT state, COUNT(*) FROM inventory_units WHERE ticket_type_id = $1 GROUP BY state`, ticketTypeID)
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
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("count units: %w", err)
	}
	return counts, nil
}

func scanUnit(row pgx.Row) (domain.InventoryUnit, error) {
	var (
		u     domain.InventoryUnit
		state string
	)
	if err := row.Scan(&u.ID, &u.TicketTypeID, &u.SerialNumber, &state, &u.RegistrationID, &u.UpdatedAt); err != nil {
		return domain.InventoryUnit{}, err
	}
	u.State = domain.UnitState(state)
	return u, nil
}
