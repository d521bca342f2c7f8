package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/policy"
)

const (
	codeMethodNotAllowed       = "method_not_allowed"
	codeNotFound               = "not_found"
	codeInvalidRequestBody     = "invalid_request_body"
	codeValidationFailed       = "validation_failed"
	codeInvalidID              = "invalid_id"
	codeInvalidQuota           = "invalid_quota"
	codeInvalidPrice           = "invalid_price"
	codeInvalidSalesWindow     = "invalid_sales_window"
	codeInvalidAmount          = "invalid_amount"
	codePaymentMethodRequired  = "payment_method_required"
	codeTicketTypeNotFound     = "ticket_type_not_found"
	codeUnitNotFound           = "unit_not_found"
	codeRegistrationNotFound   = "registration_not_found"
	codePaymentNotFound        = "payment_not_found"
	codeExhausted              = "exhausted"
	codeOutsideSalesWindow     = "outside_sales_window"
	codeAlreadyFinalized       = "already_finalized"
	codeAlreadyConfirmed       = "already_confirmed"
	codeInvalidUseState        = "invalid_use_state"
	codeInvalidTransition      = "invalid_transition"
	codePaymentAlreadyRecorded = "payment_already_recorded"
	codeRegistrationActive     = "registration_active"
	codeStaleState             = "stale_state"
	codeUnauthenticated        = "unauthenticated"
	codeForbidden              = "forbidden"
	codeUnavailable            = "unavailable"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// errorMappings is matched in order with errors.Is.
var errorMappings = []struct {
	target error
	status int
	code   string
}{
	{policy.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated},
	{policy.ErrForbidden, http.StatusForbidden, codeForbidden},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrInvalidQuota, http.StatusBadRequest, codeInvalidQuota},
	{domain.ErrInvalidPrice, http.StatusBadRequest, codeInvalidPrice},
	{domain.ErrInvalidSalesWindow, http.StatusBadRequest, codeInvalidSalesWindow},
	{domain.ErrInvalidAmount, http.StatusBadRequest, codeInvalidAmount},
	{domain.ErrPaymentMethodRequired, http.StatusBadRequest, codePaymentMethodRequired},
	{domain.ErrTicketTypeNotFound, http.StatusNotFound, codeTicketTypeNotFound},
	{domain.ErrUnitNotFound, http.StatusNotFound, codeUnitNotFound},
	{domain.ErrRegistrationNotFound, http.StatusNotFound, codeRegistrationNotFound},
	{domain.ErrPaymentNotFound, http.StatusNotFound, codePaymentNotFound},
	{domain.ErrExhausted, http.StatusConflict, codeExhausted},
	{domain.ErrOutsideSalesWindow, http.StatusConflict, codeOutsideSalesWindow},
	{domain.ErrAlreadyConfirmed, http.StatusConflict, codeAlreadyConfirmed},
	{domain.ErrAlreadyFinalized, http.StatusConflict, codeAlreadyFinalized},
	{domain.ErrInvalidUseState, http.StatusConflict, codeInvalidUseState},
	{domain.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition},
	{domain.ErrPaymentAlreadyRecorded, http.StatusConflict, codePaymentAlreadyRecorded},
	{domain.ErrRegistrationActive, http.StatusConflict, codeRegistrationActive},
	{domain.ErrStaleState, http.StatusConflict, codeStaleState},
}

// writeServiceError maps an engine error to a status and stable code.
// Unmapped errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	loggerFrom(r.Context()).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
