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

type ReservationRepository struct {
	conn
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{conn: conn{pool: pool}}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const registrationColumns = `id, user_id, ticket_type_id, inventory_unit_id, status, cancel_reason,
reservation_deadline, created_at, updated_at`

func (r *ReservationRepository) CreateRegistration(ctx context.Context, reg domain.Registration) error {
	const stmt = `
INSERT INTO registrations (` + registrationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		reg.ID,
		reg.UserID,
		reg.TicketTypeID,
		reg.InventoryUnitID,
		string(reg.Status),
		string(reg.CancelReason),
		reg.ReservationDeadline,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) || isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUnitNotFound
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	return r.getRegistration(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
}

func (r *ReservationRepository) GetRegistrationForUpdate(ctx context.Context, id string) (domain.Registration, error) {
	return r.getRegistration(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) getRegistration(ctx context.Context, query, id string) (domain.Registration, error) {
	var (
		reg            domain.Registration
		status, reason string
	)
	err := r.queryRow(ctx, query, id).Scan(
		&reg.ID, &reg.UserID, &reg.TicketTypeID, &reg.InventoryUnitID, &status, &reason,
		&reg.ReservationDeadline, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Registration{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Registration{}, domain.ErrRegistrationNotFound
		}
		return domain.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)
	reg.CancelReason = domain.CancelReason(reason)
	return reg, nil
}

func (r *ReservationRepository) UpdateRegistrationStatus(ctx context.Context, id string, from, to domain.RegistrationStatus, reason domain.CancelReason, now time.Time) error {
	const stmt = `
UPDATE registrations
SET status = $3, cancel_reason = $4, updated_at = $5
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), string(to), string(reason), now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrStale(ctx, "registrations", id, domain.ErrRegistrationNotFound)
}

func (r *ReservationRepository) DeleteRegistration(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// ListExpiredPending returns ids of PENDING registrations with a PENDING
// payment whose deadline is at or before now. It takes no locks; the caller
// re-checks each candidate under lock.
func (r *ReservationRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
SELECT r.id
FROM registrations r
JOIN payments p ON p.registration_id = r.id
WHERE r.status = 'PENDING' AND p.status = 'PENDING' AND r.reservation_deadline <= $1
ORDER BY r.reservation_deadline, r.id
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired registrations: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list expired registrations: %w", err)
	}
	return ids, nil
}

const paymentColumns = `id, registration_id, amount::text, method, status, recorded_at, created_at, updated_at`

func (r *ReservationRepository) CreatePayment(ctx context.Context, p domain.Payment) error {
	const stmt = `
INSERT INTO payments (id, registration_id, amount, method, status, recorded_at, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		p.ID,
		p.RegistrationID,
		p.Amount.String(),
		p.Method,
		string(p.Status),
		p.RecordedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) || isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrRegistrationNotFound
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *ReservationRepository) GetPaymentForUpdate(ctx context.Context, id string) (domain.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) GetPaymentByRegistrationForUpdate(ctx context.Context, registrationID string) (domain.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE registration_id = $1 FOR UPDATE`, registrationID)
}

func (r *ReservationRepository) getPayment(ctx context.Context, query, arg string) (domain.Payment, error) {
	var (
		p              domain.Payment
		amount, status string
	)
	err := r.queryRow(ctx, query, arg).Scan(
		&p.ID, &p.RegistrationID, &amount, &p.Method, &status, &p.RecordedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Payment{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Status = domain.PaymentStatus(status)
	return p, nil
}

func (r *ReservationRepository) RecordPayment(ctx context.Context, id string, amount decimal.Decimal, method string, now time.Time) error {
	const stmt = `
UPDATE payments
SET amount = $2::numeric, method = $3, recorded_at = $4, updated_at = $4
WHERE id = $1 AND recorded_at IS NULL AND status = 'PENDING'`

	tag, err := r.exec(ctx, stmt, id, amount.String(), method, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("record payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	err = r.missOrStale(ctx, "payments", id, domain.ErrPaymentNotFound)
	if errors.Is(err, domain.ErrStaleState) {
		return domain.ErrPaymentAlreadyRecorded
	}
	return err
}

func (r *ReservationRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus, now time.Time) error {
	const stmt = `
UPDATE payments
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, string(from), string(to), now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrStale(ctx, "payments", id, domain.ErrPaymentNotFound)
}

func (r *ReservationRepository) DeletePayment(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
