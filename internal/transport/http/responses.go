package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
)

type ticketTypeResponse struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	Name       string          `json:"name"`
	Quota      int             `json:"quota"`
	Price      decimal.Decimal `json:"price"`
	SalesStart time.Time       `json:"sales_start"`
	SalesEnd   time.Time       `json:"sales_end"`
	CreatedAt  time.Time       `json:"created_at"`
}

func newTicketTypeResponse(tt domain.TicketType) ticketTypeResponse {
	return ticketTypeResponse{
		ID:         tt.ID,
		EventID:    tt.EventID,
		Name:       tt.Name,
		Quota:      tt.Quota,
		Price:      tt.Price,
		SalesStart: tt.SalesStart,
		SalesEnd:   tt.SalesEnd,
		CreatedAt:  tt.CreatedAt,
	}
}

type unitResponse struct {
	ID             string    `json:"id"`
	TicketTypeID   string    `json:"ticket_type_id"`
	SerialNumber   int       `json:"serial_number"`
	State          string    `json:"state"`
	RegistrationID string    `json:"registration_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newUnitResponse(u domain.InventoryUnit) unitResponse {
	return unitResponse{
		ID:             u.ID,
		TicketTypeID:   u.TicketTypeID,
		SerialNumber:   u.SerialNumber,
		State:          string(u.State),
		RegistrationID: u.RegistrationID,
		UpdatedAt:      u.UpdatedAt,
	}
}

type registrationResponse struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	TicketTypeID        string    `json:"ticket_type_id"`
	InventoryUnitID     string    `json:"inventory_unit_id"`
	Status              string    `json:"status"`
	CancelReason        string    `json:"cancel_reason,omitempty"`
	ReservationDeadline time.Time `json:"reservation_deadline"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func newRegistrationResponse(reg domain.Registration) registrationResponse {
	return registrationResponse{
		ID:                  reg.ID,
		UserID:              reg.UserID,
		TicketTypeID:        reg.TicketTypeID,
		InventoryUnitID:     reg.InventoryUnitID,
		Status:              string(reg.Status),
		CancelReason:        string(reg.CancelReason),
		ReservationDeadline: reg.ReservationDeadline,
		CreatedAt:           reg.CreatedAt,
		UpdatedAt:           reg.UpdatedAt,
	}
}

type paymentResponse struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method,omitempty"`
	Status         string          `json:"status"`
	RecordedAt     *time.Time      `json:"recorded_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		RegistrationID: p.RegistrationID,
		Amount:         p.Amount,
		Method:         p.Method,
		Status:         string(p.Status),
		RecordedAt:     p.RecordedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type reservationResponse struct {
	Registration registrationResponse `json:"registration"`
	Payment      paymentResponse      `json:"payment"`
	Unit         unitResponse         `json:"unit"`
}

func newReservationResponse(res app.Reservation) reservationResponse {
	return reservationResponse{
		Registration: newRegistrationResponse(res.Registration),
		Payment:      newPaymentResponse(res.Payment),
		Unit:         newUnitResponse(res.Unit),
	}
}

type paymentOutcomeResponse struct {
	Payment      paymentResponse      `json:"payment"`
	Registration registrationResponse `json:"registration"`
	Unit         unitResponse         `json:"unit"`
}

func newPaymentOutcomeResponse(out app.PaymentOutcome) paymentOutcomeResponse {
	return paymentOutcomeResponse{
		Payment:      newPaymentResponse(out.Payment),
		Registration: newRegistrationResponse(out.Registration),
		Unit:         newUnitResponse(out.Unit),
	}
}
