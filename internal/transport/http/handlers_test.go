package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeInventory struct {
	create func(app.CreateTicketTypeInput) (domain.TicketType, error)
	status func(string) (domain.InventoryStatus, error)
	void   func(string) (domain.InventoryUnit, error)
	types  []domain.TicketType
}

func (f *fakeInventory) CreateTicketType(_ context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error) {
	return f.create(in)
}

func (f *fakeInventory) GetTicketType(_ context.Context, id string) (domain.TicketType, error) {
	for _, tt := range f.types {
		if tt.ID == id {
			return tt, nil
		}
	}
	return domain.TicketType{}, domain.ErrTicketTypeNotFound
}

func (f *fakeInventory) ListTicketTypes(_ context.Context, eventID string) ([]domain.TicketType, error) {
	var out []domain.TicketType
	for _, tt := range f.types {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (f *fakeInventory) InventoryStatus(_ context.Context, id string) (domain.InventoryStatus, error) {
	return f.status(id)
}

func (f *fakeInventory) VoidUnit(_ context.Context, id string) (domain.InventoryUnit, error) {
	return f.void(id)
}

type fakeReservations struct {
	reserve       func(app.ReserveInput) (app.Reservation, error)
	cancel        func(app.CancelInput) (domain.Registration, error)
	deleteErr     error
	recordPayment func(app.RecordPaymentInput) (domain.Payment, error)
	markUsed      func(string) (domain.InventoryUnit, error)
	registrations map[string]domain.Registration
	payments      map[string]domain.Payment
}

func (f *fakeReservations) Reserve(_ context.Context, in app.ReserveInput) (app.Reservation, error) {
	return f.reserve(in)
}

func (f *fakeReservations) GetRegistration(_ context.Context, id string) (domain.Registration, error) {
	reg, ok := f.registrations[id]
	if !ok {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	return reg, nil
}

func (f *fakeReservations) CancelRegistration(_ context.Context, in app.CancelInput) (domain.Registration, error) {
	return f.cancel(in)
}

func (f *fakeReservations) DeleteRegistration(context.Context, string) error {
	return f.deleteErr
}

func (f *fakeReservations) RecordPayment(_ context.Context, in app.RecordPaymentInput) (domain.Payment, error) {
	return f.recordPayment(in)
}

func (f *fakeReservations) GetPayment(_ context.Context, id string) (domain.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakeReservations) MarkUsed(_ context.Context, id string) (domain.InventoryUnit, error) {
	return f.markUsed(id)
}

type fakePayments struct {
	confirm func(string) (app.PaymentOutcome, error)
	cancel  func(string) (app.PaymentOutcome, error)
}

func (f *fakePayments) ConfirmPayment(_ context.Context, id string) (app.PaymentOutcome, error) {
	return f.confirm(id)
}

func (f *fakePayments) CancelPayment(_ context.Context, id string) (app.PaymentOutcome, error) {
	return f.cancel(id)
}

type httpCase struct {
	name       string
	method     string
	path       string
	body       string
	user       string
	roles      string
	wantStatus int
	wantSubstr string
}

func runCases(t *testing.T, handler http.Handler, cases []httpCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.user != "" {
				req.Header.Set(headerUserID, tc.user)
			}
			if tc.roles != "" {
				req.Header.Set(headerUserRoles, tc.roles)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantSubstr != "" {
				assert.Contains(t, rec.Body.String(), tc.wantSubstr)
			}
		})
	}
}

func newTestRouter(inv *fakeInventory, res *fakeReservations, pay *fakePayments) http.Handler {
	return NewRouter(RouterConfig{
		Inventory:    inv,
		Reservations: res,
		Payments:     pay,
		Store:        pingFunc(func(context.Context) error { return nil }),
	})
}

func TestTicketTypeHandlers(t *testing.T) {
	t.Parallel()

	tt := domain.TicketType{
		ID:         "tt-1",
		EventID:    "event-1",
		Name:       "General",
		Quota:      100,
		Price:      decimal.RequireFromString("25.00"),
		SalesStart: testNow,
		SalesEnd:   testNow.Add(24 * time.Hour),
		CreatedAt:  testNow,
	}
	inv := &fakeInventory{
		types: []domain.TicketType{tt},
		create: func(in app.CreateTicketTypeInput) (domain.TicketType, error) {
			if in.Quota == 7 {
				return domain.TicketType{}, domain.ErrInvalidSalesWindow
			}
			out := tt
			out.Name = in.Name
			return out, nil
		},
		status: func(id string) (domain.InventoryStatus, error) {
			if id != tt.ID {
				return domain.InventoryStatus{}, domain.ErrTicketTypeNotFound
			}
			return domain.InventoryStatus{TicketTypeID: id, Quota: 100, Available: 90, Reserved: 10}, nil
		},
		void: func(id string) (domain.InventoryUnit, error) {
			if id == "unit-reserved" {
				return domain.InventoryUnit{}, &domain.TransitionError{Entity: "inventory unit", From: "RESERVED", To: "CANCELLED"}
			}
			return domain.InventoryUnit{ID: id, TicketTypeID: tt.ID, State: domain.UnitCancelled}, nil
		},
	}
	handler := newTestRouter(inv, &fakeReservations{}, &fakePayments{})

	const createBody = `{"event_id":"event-1","name":"VIP","quota":10,"price":"99.50","sales_start":"2026-05-01T00:00:00Z","sales_end":"2026-05-02T00:00:00Z"}`

	runCases(t, handler, []httpCase{
		{name: "create as admin", method: http.MethodPost, path: "/v1/ticket-types", body: createBody, user: "staff", roles: "admin", wantStatus: http.StatusCreated, wantSubstr: `"name":"VIP"`},
		{name: "create unauthenticated", method: http.MethodPost, path: "/v1/ticket-types", body: createBody, wantStatus: http.StatusUnauthorized, wantSubstr: codeUnauthenticated},
		{name: "create as plain user", method: http.MethodPost, path: "/v1/ticket-types", body: createBody, user: "u1", roles: "user", wantStatus: http.StatusForbidden, wantSubstr: codeForbidden},
		{name: "create invalid json", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":`, user: "staff", roles: "superuser", wantStatus: http.StatusBadRequest, wantSubstr: codeInvalidRequestBody},
		{name: "create unknown field", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":"e","bogus":1}`, user: "staff", roles: "admin", wantStatus: http.StatusBadRequest, wantSubstr: codeInvalidRequestBody},
		{name: "create missing name", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":"event-1","quota":1,"price":"1","sales_start":"2026-05-01T00:00:00Z","sales_end":"2026-05-02T00:00:00Z"}`, user: "staff", roles: "admin", wantStatus: http.StatusBadRequest, wantSubstr: "'name'"},
		{name: "create negative quota", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":"event-1","name":"x","quota":-1,"price":"1","sales_start":"2026-05-01T00:00:00Z","sales_end":"2026-05-02T00:00:00Z"}`, user: "staff", roles: "admin", wantStatus: http.StatusBadRequest, wantSubstr: "'quota'"},
		{name: "create quota above cap", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":"event-1","name":"x","quota":100001,"price":"1","sales_start":"2026-05-01T00:00:00Z","sales_end":"2026-05-02T00:00:00Z"}`, user: "staff", roles: "admin", wantStatus: http.StatusBadRequest, wantSubstr: "'quota'"},
		{name: "create bad window", method: http.MethodPost, path: "/v1/ticket-types", body: `{"event_id":"event-1","name":"x","quota":7,"price":"1","sales_start":"2026-05-01T00:00:00Z","sales_end":"2026-05-02T00:00:00Z"}`, user: "staff", roles: "admin", wantStatus: http.StatusBadRequest, wantSubstr: codeInvalidSalesWindow},
		{name: "get", method: http.MethodGet, path: "/v1/ticket-types/tt-1", user: "u1", wantStatus: http.StatusOK, wantSubstr: `"price":"25"`},
		{name: "get missing", method: http.MethodGet, path: "/v1/ticket-types/nope", user: "u1", wantStatus: http.StatusNotFound, wantSubstr: codeTicketTypeNotFound},
		{name: "list by event", method: http.MethodGet, path: "/v1/events/event-1/ticket-types", user: "u1", wantStatus: http.StatusOK, wantSubstr: `"id":"tt-1"`},
		{name: "list empty event", method: http.MethodGet, path: "/v1/events/other/ticket-types", user: "u1", wantStatus: http.StatusOK, wantSubstr: `[]`},
		{name: "status", method: http.MethodGet, path: "/v1/ticket-types/tt-1/status", user: "u1", wantStatus: http.StatusOK, wantSubstr: `"available":90`},
		{name: "void", method: http.MethodPost, path: "/v1/units/unit-1/void", user: "staff", roles: "admin", wantStatus: http.StatusOK, wantSubstr: `"state":"CANCELLED"`},
		{name: "void reserved unit", method: http.MethodPost, path: "/v1/units/unit-reserved/void", user: "staff", roles: "admin", wantStatus: http.StatusConflict, wantSubstr: codeInvalidTransition},
		{name: "void as user", method: http.MethodPost, path: "/v1/units/unit-1/void", user: "u1", wantStatus: http.StatusForbidden},
	})
}

func TestRegistrationHandlers(t *testing.T) {
	t.Parallel()

	pending := domain.Registration{
		ID:                  "reg-1",
		UserID:              "owner",
		TicketTypeID:        "tt-1",
		InventoryUnitID:     "unit-1",
		Status:              domain.RegistrationPending,
		ReservationDeadline: testNow.Add(15 * time.Minute),
	}
	confirmed := pending
	confirmed.ID = "reg-2"
	confirmed.Status = domain.RegistrationConfirmed

	var reservedFor string
	res := &fakeReservations{
		registrations: map[string]domain.Registration{pending.ID: pending, confirmed.ID: confirmed},
		reserve: func(in app.ReserveInput) (app.Reservation, error) {
			switch in.TicketTypeID {
			case "sold-out":
				return app.Reservation{}, domain.ErrExhausted
			case "closed":
				return app.Reservation{}, domain.ErrOutsideSalesWindow
			}
			reservedFor = in.UserID
			reg := pending
			reg.UserID = in.UserID
			return app.Reservation{
				Registration: reg,
				Payment:      domain.Payment{ID: "pay-1", RegistrationID: reg.ID, Status: domain.PaymentPending, Amount: decimal.Zero},
				Unit:         domain.InventoryUnit{ID: "unit-1", State: domain.UnitReserved, RegistrationID: reg.ID},
			}, nil
		},
		cancel: func(in app.CancelInput) (domain.Registration, error) {
			if in.RegistrationID == confirmed.ID {
				return domain.Registration{}, domain.ErrAlreadyConfirmed
			}
			out := pending
			out.Status = domain.RegistrationCancelled
			out.CancelReason = domain.CancelReasonUser
			return out, nil
		},
		recordPayment: func(in app.RecordPaymentInput) (domain.Payment, error) {
			if in.Amount.IsNegative() {
				return domain.Payment{}, domain.ErrInvalidAmount
			}
			recorded := testNow
			return domain.Payment{ID: "pay-1", RegistrationID: in.RegistrationID, Amount: in.Amount, Method: in.Method, Status: domain.PaymentPending, RecordedAt: &recorded}, nil
		},
		markUsed: func(id string) (domain.InventoryUnit, error) {
			if id == "unit-reserved" {
				return domain.InventoryUnit{}, domain.ErrInvalidUseState
			}
			return domain.InventoryUnit{ID: id, State: domain.UnitUsed}, nil
		},
		deleteErr: domain.ErrRegistrationActive,
	}
	handler := newTestRouter(&fakeInventory{}, res, &fakePayments{})

	runCases(t, handler, []httpCase{
		{name: "reserve", method: http.MethodPost, path: "/v1/registrations", body: `{"ticket_type_id":"tt-1"}`, user: "owner", wantStatus: http.StatusCreated, wantSubstr: `"status":"PENDING"`},
		{name: "reserve missing ticket type", method: http.MethodPost, path: "/v1/registrations", body: `{}`, user: "owner", wantStatus: http.StatusBadRequest, wantSubstr: "'ticket_type_id'"},
		{name: "reserve exhausted", method: http.MethodPost, path: "/v1/registrations", body: `{"ticket_type_id":"sold-out"}`, user: "owner", wantStatus: http.StatusConflict, wantSubstr: codeExhausted},
		{name: "reserve outside window", method: http.MethodPost, path: "/v1/registrations", body: `{"ticket_type_id":"closed"}`, user: "owner", wantStatus: http.StatusConflict, wantSubstr: codeOutsideSalesWindow},
		{name: "reserve for someone else as user", method: http.MethodPost, path: "/v1/registrations", body: `{"ticket_type_id":"tt-1","user_id":"victim"}`, user: "owner", wantStatus: http.StatusForbidden},
		{name: "reserve unauthenticated", method: http.MethodPost, path: "/v1/registrations", body: `{"ticket_type_id":"tt-1"}`, wantStatus: http.StatusUnauthorized},
		{name: "get own", method: http.MethodGet, path: "/v1/registrations/reg-1", user: "owner", wantStatus: http.StatusOK, wantSubstr: `"id":"reg-1"`},
		{name: "get other user's", method: http.MethodGet, path: "/v1/registrations/reg-1", user: "intruder", wantStatus: http.StatusForbidden},
		{name: "get as staff", method: http.MethodGet, path: "/v1/registrations/reg-1", user: "staff", roles: "admin", wantStatus: http.StatusOK},
		{name: "get missing", method: http.MethodGet, path: "/v1/registrations/nope", user: "owner", wantStatus: http.StatusNotFound, wantSubstr: codeRegistrationNotFound},
		{name: "cancel own", method: http.MethodPost, path: "/v1/registrations/reg-1/cancel", user: "owner", wantStatus: http.StatusOK, wantSubstr: `"cancel_reason":"user"`},
		{name: "cancel confirmed", method: http.MethodPost, path: "/v1/registrations/reg-2/cancel", user: "owner", wantStatus: http.StatusConflict, wantSubstr: codeAlreadyConfirmed},
		{name: "cancel other user's", method: http.MethodPost, path: "/v1/registrations/reg-1/cancel", user: "intruder", wantStatus: http.StatusForbidden},
		{name: "record payment", method: http.MethodPut, path: "/v1/registrations/reg-1/payment", body: `{"amount":"25.00","method":"card"}`, user: "owner", wantStatus: http.StatusOK, wantSubstr: `"method":"card"`},
		{name: "record payment without method", method: http.MethodPut, path: "/v1/registrations/reg-1/payment", body: `{"amount":"25.00"}`, user: "owner", wantStatus: http.StatusBadRequest, wantSubstr: "'method'"},
		{name: "record negative payment", method: http.MethodPut, path: "/v1/registrations/reg-1/payment", body: `{"amount":"-1","method":"card"}`, user: "owner", wantStatus: http.StatusBadRequest, wantSubstr: codeInvalidAmount},
		{name: "delete active", method: http.MethodDelete, path: "/v1/registrations/reg-1", user: "staff", roles: "admin", wantStatus: http.StatusConflict, wantSubstr: codeRegistrationActive},
		{name: "delete as user", method: http.MethodDelete, path: "/v1/registrations/reg-1", user: "owner", wantStatus: http.StatusForbidden},
		{name: "mark used", method: http.MethodPost, path: "/v1/units/unit-1/use", user: "staff", roles: "admin", wantStatus: http.StatusOK, wantSubstr: `"state":"USED"`},
		{name: "mark used not sold", method: http.MethodPost, path: "/v1/units/unit-reserved/use", user: "staff", roles: "admin", wantStatus: http.StatusConflict, wantSubstr: codeInvalidUseState},
	})

	t.Run("staff reserves on behalf of a user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/registrations", strings.NewReader(`{"ticket_type_id":"tt-1","user_id":"walk-in"}`))
		req.Header.Set(headerUserID, "staff")
		req.Header.Set(headerUserRoles, "admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "walk-in", reservedFor)
	})
}

func TestPaymentHandlers(t *testing.T) {
	t.Parallel()

	reg := domain.Registration{ID: "reg-1", UserID: "owner", Status: domain.RegistrationConfirmed}
	res := &fakeReservations{
		registrations: map[string]domain.Registration{reg.ID: reg},
		payments: map[string]domain.Payment{
			"pay-confirmed": {ID: "pay-confirmed", RegistrationID: reg.ID, Status: domain.PaymentConfirmed, Amount: decimal.RequireFromString("25")},
		},
	}
	pay := &fakePayments{
		confirm: func(id string) (app.PaymentOutcome, error) {
			switch id {
			case "pay-confirmed":
				return app.PaymentOutcome{}, &domain.FinalizedError{PaymentID: id, Current: domain.PaymentConfirmed, Requested: domain.PaymentConfirmed}
			case "pay-missing":
				return app.PaymentOutcome{}, domain.ErrPaymentNotFound
			case "pay-broken":
				return app.PaymentOutcome{}, errors.New("disk on fire")
			}
			return app.PaymentOutcome{
				Payment:      domain.Payment{ID: id, Status: domain.PaymentConfirmed},
				Registration: domain.Registration{ID: "reg-9", Status: domain.RegistrationConfirmed},
				Unit:         domain.InventoryUnit{ID: "unit-9", State: domain.UnitSold},
			}, nil
		},
		cancel: func(id string) (app.PaymentOutcome, error) {
			if id == "pay-confirmed" {
				return app.PaymentOutcome{}, &domain.FinalizedError{PaymentID: id, Current: domain.PaymentConfirmed, Requested: domain.PaymentCancelled}
			}
			return app.PaymentOutcome{
				Payment:      domain.Payment{ID: id, Status: domain.PaymentCancelled},
				Registration: domain.Registration{ID: "reg-9", Status: domain.RegistrationCancelled, CancelReason: domain.CancelReasonPaymentCancelled},
				Unit:         domain.InventoryUnit{ID: "unit-9", State: domain.UnitAvailable},
			}, nil
		},
	}
	handler := newTestRouter(&fakeInventory{}, res, pay)

	runCases(t, handler, []httpCase{
		{name: "confirm", method: http.MethodPost, path: "/v1/payments/pay-1/confirm", user: "psp", roles: "admin", wantStatus: http.StatusOK, wantSubstr: `"state":"SOLD"`},
		{name: "confirm repeated", method: http.MethodPost, path: "/v1/payments/pay-confirmed/confirm", user: "psp", roles: "admin", wantStatus: http.StatusOK, wantSubstr: `"already_finalized":true`},
		{name: "cancel after confirm", method: http.MethodPost, path: "/v1/payments/pay-confirmed/cancel", user: "psp", roles: "admin", wantStatus: http.StatusConflict, wantSubstr: codeAlreadyFinalized},
		{name: "cancel", method: http.MethodPost, path: "/v1/payments/pay-1/cancel", user: "psp", roles: "admin", wantStatus: http.StatusOK, wantSubstr: `"cancel_reason":"payment_cancelled"`},
		{name: "confirm missing", method: http.MethodPost, path: "/v1/payments/pay-missing/confirm", user: "psp", roles: "admin", wantStatus: http.StatusNotFound, wantSubstr: codePaymentNotFound},
		{name: "confirm internal error hides detail", method: http.MethodPost, path: "/v1/payments/pay-broken/confirm", user: "psp", roles: "admin", wantStatus: http.StatusInternalServerError, wantSubstr: codeInternalError},
		{name: "confirm as user", method: http.MethodPost, path: "/v1/payments/pay-1/confirm", user: "owner", wantStatus: http.StatusForbidden},
		{name: "get own payment", method: http.MethodGet, path: "/v1/payments/pay-confirmed", user: "owner", wantStatus: http.StatusOK, wantSubstr: `"amount":"25"`},
		{name: "get someone else's payment", method: http.MethodGet, path: "/v1/payments/pay-confirmed", user: "intruder", wantStatus: http.StatusForbidden},
	})

	t.Run("internal errors do not leak", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/pay-broken/confirm", nil)
		req.Header.Set(headerUserID, "psp")
		req.Header.Set(headerUserRoles, "admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var resp errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "internal error", resp.Error)
	})
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	handler := NewRouter(RouterConfig{
		Store:       pingFunc(func(context.Context) error { return nil }),
		CORSOrigins: []string{"https://tickets.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/registrations", nil)
	req.Header.Set("Origin", "https://tickets.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://tickets.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
