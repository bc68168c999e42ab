package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pilldrop/commerce-api/internal/domain/cart"
	"github.com/pilldrop/commerce-api/internal/domain/member"
	"github.com/pilldrop/commerce-api/internal/domain/order"
	"github.com/pilldrop/commerce-api/internal/domain/payment"
	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError maps the domain error taxonomy to HTTP statuses:
// not-found → 404, client-data inconsistencies → 422, invalid state → 422,
// conflicts → 409, gateway unreachable → 502, everything else → 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var (
		dmErr *order.DeclarationMismatchError
		ilErr *order.InvalidLineItemError
		amErr *payment.AmountMismatchError
	)

	switch {
	case errors.Is(err, member.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, subscription.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, cart.ErrEmpty):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &dmErr),
		errors.As(err, &ilErr),
		errors.As(err, &amErr),
		errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, subscription.ErrInvalidState):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, payment.ErrDuplicatePayment),
		errors.Is(err, subscription.ErrActiveConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrGatewayUnreachable):
		status, msg = http.StatusBadGateway, err.Error()
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

// decodeJSON decodes and validates a request body.
func (h *Handler) decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	if err := h.validate.Struct(v); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return errors.Errorf("validation failed on field %s", vErrs[0].Field())
		}
		return err
	}
	return nil
}
