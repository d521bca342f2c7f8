package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/policy"
)

// ReservationAPI is the minimal interface needed for the registration lifecycle.
type ReservationAPI interface {
	Reserve(ctx context.Context, in app.ReserveInput) (app.Reservation, error)
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
	CancelRegistration(ctx context.Context, in app.CancelInput) (domain.Registration, error)
	DeleteRegistration(ctx context.Context, id string) error
	RecordPayment(ctx context.Context, in app.RecordPaymentInput) (domain.Payment, error)
	GetPayment(ctx context.Context, id string) (domain.Payment, error)
	MarkUsed(ctx context.Context, unitID string) (domain.InventoryUnit, error)
}

type reserveRequest struct {
	TicketTypeID string `json:"ticket_type_id" validate:"required"`
	// UserID lets staff reserve on behalf of someone else.
	UserID string `json:"user_id,omitempty"`
}

// HandleReserve claims a unit for the caller.
func HandleReserve(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := authorize(w, r, policy.ActionReserve)
		if !ok {
			return
		}
		var req reserveRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		userID := caller.UserID
		if req.UserID != "" && req.UserID != caller.UserID {
			if !caller.Staff() {
				writeServiceError(w, r, policy.ErrForbidden)
				return
			}
			userID = req.UserID
		}

		res, err := svc.Reserve(r.Context(), app.ReserveInput{
			TicketTypeID: req.TicketTypeID,
			UserID:       userID,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newReservationResponse(res))
	}
}

// ownedRegistration loads the registration named in the path and checks the
// caller may act on it.
func ownedRegistration(w http.ResponseWriter, r *http.Request, svc ReservationAPI, action policy.Action) (policy.Caller, domain.Registration, bool) {
	caller, ok := authorize(w, r, action)
	if !ok {
		return caller, domain.Registration{}, false
	}
	reg, err := svc.GetRegistration(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return caller, domain.Registration{}, false
	}
	if !authorizeOwner(w, r, caller, reg.UserID) {
		return caller, domain.Registration{}, false
	}
	return caller, reg, true
}

func HandleGetRegistration(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, reg, ok := ownedRegistration(w, r, svc, policy.ActionViewRegistration)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newRegistrationResponse(reg))
	}
}

// HandleCancelRegistration releases a PENDING registration's unit.
func HandleCancelRegistration(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, reg, ok := ownedRegistration(w, r, svc, policy.ActionCancelRegistration)
		if !ok {
			return
		}
		cancelled, err := svc.CancelRegistration(r.Context(), app.CancelInput{
			RegistrationID: reg.ID,
			Actor:          caller.UserID,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRegistrationResponse(cancelled))
	}
}

// HandleDeleteRegistration removes a CANCELLED registration and its payment. Staff only.
func HandleDeleteRegistration(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionDeleteRegistration); !ok {
			return
		}
		if err := svc.DeleteRegistration(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,max=64"`
}

// HandleRecordPayment fills in amount and method on the registration's payment.
func HandleRecordPayment(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, reg, ok := ownedRegistration(w, r, svc, policy.ActionRecordPayment)
		if !ok {
			return
		}
		var req recordPaymentRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		payment, err := svc.RecordPayment(r.Context(), app.RecordPaymentInput{
			RegistrationID: reg.ID,
			Amount:         req.Amount,
			Method:         req.Method,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPaymentResponse(payment))
	}
}

// HandleMarkUsed checks a SOLD unit in at the venue. Staff only.
func HandleMarkUsed(svc ReservationAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionMarkUsed); !ok {
			return
		}
		unit, err := svc.MarkUsed(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUnitResponse(unit))
	}
}
