package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/policy"
)

// InventoryAPI is the minimal interface needed for ticket type and unit administration.
type InventoryAPI interface {
	CreateTicketType(ctx context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error)
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)
	InventoryStatus(ctx context.Context, ticketTypeID string) (domain.InventoryStatus, error)
	VoidUnit(ctx context.Context, unitID string) (domain.InventoryUnit, error)
}

type createTicketTypeRequest struct {
	EventID    string          `json:"event_id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	Quota      int             `json:"quota" validate:"gte=0,lte=100000"`
	Price      decimal.Decimal `json:"price"`
	SalesStart time.Time       `json:"sales_start" validate:"required"`
	SalesEnd   time.Time       `json:"sales_end" validate:"required"`
}

// HandleCreateTicketType creates a ticket type and its units. Staff only.
func HandleCreateTicketType(svc InventoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionCreateTicketType); !ok {
			return
		}
		var req createTicketTypeRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		tt, err := svc.CreateTicketType(r.Context(), app.CreateTicketTypeInput{
			EventID:    req.EventID,
			Name:       req.Name,
			Quota:      req.Quota,
			Price:      req.Price,
			SalesStart: req.SalesStart,
			SalesEnd:   req.SalesEnd,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newTicketTypeResponse(tt))
	}
}

func HandleGetTicketType(svc InventoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionViewInventory); !ok {
			return
		}
		tt, err := svc.GetTicketType(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTicketTypeResponse(tt))
	}
}

func HandleListTicketTypes(svc InventoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionViewInventory); !ok {
			return
		}
		types, err := svc.ListTicketTypes(r.Context(), mux.Vars(r)["eventID"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]ticketTypeResponse, 0, len(types))
		for _, tt := range types {
			resp = append(resp, newTicketTypeResponse(tt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleInventoryStatus reports per-state unit counts for a ticket type.
func HandleInventoryStatus(svc InventoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionViewInventory); !ok {
			return
		}
		status, err := svc.InventoryStatus(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func HandleVoidUnit(svc InventoryAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, policy.ActionVoidUnit); !ok {
			return
		}
		unit, err := svc.VoidUnit(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUnitResponse(unit))
	}
}
