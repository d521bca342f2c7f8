package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// RouterConfig wires the engine services into the HTTP surface.
type RouterConfig struct {
	Inventory    InventoryAPI
	Reservations ReservationAPI
	Payments     PaymentAPI
	Store        Pinger
	// Metrics is mounted at /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
	Logger      logrus.FieldLogger
}

// NewRouter builds the complete handler chain: request logging, CORS,
// caller identification and routing.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = NotFoundHandler()
	router.MethodNotAllowedHandler = MethodNotAllowedHandler()

	router.Handle("/health", HealthHandler(cfg.Store)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(Identify)

	api.HandleFunc("/ticket-types", HandleCreateTicketType(cfg.Inventory)).Methods(http.MethodPost)
	api.HandleFunc("/ticket-types/{id}", HandleGetTicketType(cfg.Inventory)).Methods(http.MethodGet)
	api.HandleFunc("/ticket-types/{id}/status", HandleInventoryStatus(cfg.Inventory)).Methods(http.MethodGet)
	api.HandleFunc("/events/{eventID}/ticket-types", HandleListTicketTypes(cfg.Inventory)).Methods(http.MethodGet)
	api.HandleFunc("/units/{id}/void", HandleVoidUnit(cfg.Inventory)).Methods(http.MethodPost)
	api.HandleFunc("/units/{id}/use", HandleMarkUsed(cfg.Reservations)).Methods(http.MethodPost)

	api.HandleFunc("/registrations", HandleReserve(cfg.Reservations)).Methods(http.MethodPost)
	api.HandleFunc("/registrations/{id}", HandleGetRegistration(cfg.Reservations)).Methods(http.MethodGet)
	api.HandleFunc("/registrations/{id}", HandleDeleteRegistration(cfg.Reservations)).Methods(http.MethodDelete)
	api.HandleFunc("/registrations/{id}/cancel", HandleCancelRegistration(cfg.Reservations)).Methods(http.MethodPost)
	api.HandleFunc("/registrations/{id}/payment", HandleRecordPayment(cfg.Reservations)).Methods(http.MethodPut)

	api.HandleFunc("/payments/{id}", HandleGetPayment(cfg.Reservations)).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}/confirm", HandleConfirmPayment(cfg.Payments, cfg.Reservations)).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/cancel", HandleCancelPayment(cfg.Payments, cfg.Reservations)).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", headerUserID, headerUserRoles},
	})
	return RequestLogger(c.Handler(router), cfg.Logger)
}
