package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dukalink/checkout-service/internal/mpesa"
	"github.com/dukalink/checkout-service/internal/order"
	"github.com/dukalink/checkout-service/internal/payment"
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]any{"success": false, "error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, payment.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, mpesa.ErrPushRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
