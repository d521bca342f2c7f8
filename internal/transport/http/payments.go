package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/policy"
)

// PaymentAPI is the minimal interface needed to apply payment outcomes.
type PaymentAPI interface {
	ConfirmPayment(ctx context.Context, paymentID string) (app.PaymentOutcome, error)
	CancelPayment(ctx context.Context, paymentID string) (app.PaymentOutcome, error)
}

// PaymentReader looks up a payment and the registration that owns it.
type PaymentReader interface {
	GetPayment(ctx context.Context, id string) (domain.Payment, error)
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
}

// HandleGetPayment returns a payment to staff or to the registration owner.
func HandleGetPayment(svc PaymentReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := authorize(w, r, policy.ActionViewRegistration)
		if !ok {
			return
		}
		payment, err := svc.GetPayment(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		reg, err := svc.GetRegistration(r.Context(), payment.RegistrationID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !authorizeOwner(w, r, caller, reg.UserID) {
			return
		}
		writeJSON(w, http.StatusOK, newPaymentResponse(payment))
	}
}

type repeatedOutcomeResponse struct {
	Payment          paymentResponse `json:"payment"`
	AlreadyFinalized bool            `json:"already_finalized"`
}

// HandleConfirmPayment applies a CONFIRMED payment event. Staff only.
func HandleConfirmPayment(svc PaymentAPI, reader PaymentReader) http.HandlerFunc {
	return handlePaymentEvent(func(ctx context.Context, id string) (app.PaymentOutcome, error) {
		return svc.ConfirmPayment(ctx, id)
	}, reader)
}

// HandleCancelPayment applies a CANCELLED payment event. Staff only.
func HandleCancelPayment(svc PaymentAPI, reader PaymentReader) http.HandlerFunc {
	return handlePaymentEvent(func(ctx context.Context, id string) (app.PaymentOutcome, error) {
		return svc.CancelPayment(ctx, id)
	}, reader)
}

// handlePaymentEvent answers a repeat of the committed outcome with 200 and
// the stored payment. A different outcome for a finalized payment is a 409.
func handlePaymentEvent(apply func(context.Context, string) (app.PaymentOutcome, error), reader PaymentReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionFinalizePayment); !ok {
			return
		}
		paymentID := mux.Vars(r)["id"]

		out, err := apply(r.Context(), paymentID)
		if err != nil {
			var finalized *domain.FinalizedError
			if errors.As(err, &finalized) && !finalized.Conflicting() {
				payment, getErr := reader.GetPayment(r.Context(), paymentID)
				if getErr != nil {
					writeServiceError(w, r, getErr)
					return
				}
				writeJSON(w, http.StatusOK, repeatedOutcomeResponse{
					Payment:          newPaymentResponse(payment),
					AlreadyFinalized: true,
				})
				return
			}
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPaymentOutcomeResponse(out))
	}
}
