package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places prices and amounts are stored with.
const MoneyScale = 2

// maxMoney is the first value the NUMERIC(12, 2) columns cannot hold.
var maxMoney = decimal.New(1, 10)

// FitsMoney reports whether d can be stored without rounding or overflow.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale)) && d.Abs().LessThan(maxMoney)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Final reports whether s is an outcome an external payment event may carry.
func (s PaymentStatus) Final() bool {
	return s == PaymentConfirmed || s == PaymentCancelled
}

// Payment is the one-to-one payment record of a registration. It is created as
// a placeholder when the registration enters PENDING; RecordedAt is set once
// the caller records the actual amount and method.
type Payment struct {
	ID             string
	RegistrationID string
	Amount         decimal.Decimal
	Method         string
	Status         PaymentStatus
	RecordedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recorded reports whether amount and method were supplied by the caller.
func (p Payment) Recorded() bool {
	return p.RecordedAt != nil
}

// RegistrationStatusFor maps a final payment outcome to the registration status it drives.
func RegistrationStatusFor(s PaymentStatus) RegistrationStatus {
	switch s {
	case PaymentConfirmed:
		return RegistrationConfirmed
	case PaymentCancelled:
		return RegistrationCancelled
	default:
		return RegistrationPending
	}
}
