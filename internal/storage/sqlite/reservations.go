package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

const registrationColumns = `id, user_id, ticket_type_id, inventory_unit_id, status, cancel_reason,
reservation_deadline, created_at, updated_at`

func (s *Store) CreateRegistration(ctx context.Context, reg domain.Registration) error {
	const stmt = `
INSERT INTO registrations (` + registrationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q(ctx).ExecContext(ctx, stmt,
		reg.ID,
		reg.UserID,
		reg.TicketTypeID,
		reg.InventoryUnitID,
		string(reg.Status),
		string(reg.CancelReason),
		toMillis(reg.ReservationDeadline),
		toMillis(reg.CreatedAt),
		toMillis(reg.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUnitNotFound
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	return s.getRegistration(ctx, id)
}

// GetRegistrationForUpdate reads inside the caller's transaction, which
// already holds the database write lock.
func (s *Store) GetRegistrationForUpdate(ctx context.Context, id string) (domain.Registration, error) {
	return s.getRegistration(ctx, id)
}

func (s *Store) getRegistration(ctx context.Context, id string) (domain.Registration, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id)

	var (
		reg                        domain.Registration
		status, reason             string
		deadline, created, updated int64
	)
	err := row.Scan(&reg.ID, &reg.UserID, &reg.TicketTypeID, &reg.InventoryUnitID, &status, &reason,
		&deadline, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	if err != nil {
		return domain.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)
	reg.CancelReason = domain.CancelReason(reason)
	reg.ReservationDeadline = fromMillis(deadline)
	reg.CreatedAt = fromMillis(created)
	reg.UpdatedAt = fromMillis(updated)
	return reg, nil
}

func (s *Store) UpdateRegistrationStatus(ctx context.Context, id string, from, to domain.RegistrationStatus, reason domain.CancelReason, now time.Time) error {
	const stmt = `
UPDATE registrations
SET status = ?, cancel_reason = ?, updated_at = ?
WHERE id = ? AND status = ?`

	ok, err := s.execOne(ctx, stmt, string(to), string(reason), toMillis(now), id, string(from))
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if ok {
		return nil
	}
	return s.missOrStale(ctx, "registrations", id, domain.ErrRegistrationNotFound)
}

func (s *Store) DeleteRegistration(ctx context.Context, id string) error {
	ok, err := s.execOne(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if !ok {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// ListExpiredPending returns PENDING registrations with a PENDING payment
// whose deadline is at or before now, oldest deadline first.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
SELECT r.id
FROM registrations r
JOIN payments p ON p.registration_id = r.id
WHERE r.status = 'PENDING' AND p.status = 'PENDING' AND r.reservation_deadline <= ?
ORDER BY r.reservation_deadline, r.id
LIMIT ?`

	rows, err := s.q(ctx).QueryContext(ctx, query, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired registrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired registration: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired registrations: %w", err)
	}
	return ids, nil
}

const paymentColumns = `id, registration_id, amount, method, status, recorded_at, created_at, updated_at`

func (s *Store) CreatePayment(ctx context.Context, p domain.Payment) error {
	const stmt = `
INSERT INTO payments (` + paymentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var recordedAt sql.NullInt64
	if p.RecordedAt != nil {
		recordedAt = sql.NullInt64{Int64: toMillis(*p.RecordedAt), Valid: true}
	}
	_, err := s.q(ctx).ExecContext(ctx, stmt,
		p.ID,
		p.RegistrationID,
		p.Amount.String(),
		p.Method,
		string(p.Status),
		recordedAt,
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrRegistrationNotFound
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return s.getPayment(ctx, `id = ?`, id)
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (domain.Payment, error) {
	return s.getPayment(ctx, `id = ?`, id)
}

func (s *Store) GetPaymentByRegistrationForUpdate(ctx context.Context, registrationID string) (domain.Payment, error) {
	return s.getPayment(ctx, `registration_id = ?`, registrationID)
}

func (s *Store) getPayment(ctx context.Context, where string, arg string) (domain.Payment, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg)

	var (
		p                domain.Payment
		amount, status   string
		recordedAt       sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.RegistrationID, &amount, &p.Method, &status, &recordedAt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Status = domain.PaymentStatus(status)
	if recordedAt.Valid {
		t := fromMillis(recordedAt.Int64)
		p.RecordedAt = &t
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// RecordPayment sets amount and method once; a second call finds recorded_at
// already set and changes nothing.
func (s *Store) RecordPayment(ctx context.Context, id string, amount decimal.Decimal, method string, now time.Time) error {
	const stmt = `
UPDATE payments
SET amount = ?, method = ?, recorded_at = ?, updated_at = ?
WHERE id = ? AND recorded_at IS NULL AND status = 'PENDING'`

	ok, err := s.execOne(ctx, stmt, amount.String(), method, toMillis(now), toMillis(now), id)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if ok {
		return nil
	}
	found, err := s.exists(ctx, "payments", id)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if !found {
		return domain.ErrPaymentNotFound
	}
	return domain.ErrPaymentAlreadyRecorded
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus, now time.Time) error {
	const stmt = `
UPDATE payments
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?`

	ok, err := s.execOne(ctx, stmt, string(to), toMillis(now), id, string(from))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if ok {
		return nil
	}
	return s.missOrStale(ctx, "payments", id, domain.ErrPaymentNotFound)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	ok, err := s.execOne(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if !ok {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (s *Store) missOrStale(ctx context.Context, table, id string, notFound error) error {
	found, err := s.exists(ctx, table, id)
	if err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !found {
		return notFound
	}
	return domain.ErrStaleState
}
