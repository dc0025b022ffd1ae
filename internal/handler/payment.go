package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dukalink/checkout-service/internal/payment"
)

// PaymentHandler handles the M-Pesa payment endpoints.
type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type stkPushRequest struct {
	OrderID     string  `json:"orderId"`
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
}

// STKPush handles POST /api/mpesa/stk-push.
func (h *PaymentHandler) STKPush(w http.ResponseWriter, r *http.Request) {
	var req stkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := uuid.FromString(req.OrderID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	tx, err := h.svc.Initiate(r.Context(), orderID, req.PhoneNumber, req.Amount)
	if err != nil {
		log.Info().Err(err).Str("order_id", req.OrderID).Msg("handler: stk push failed")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"checkoutRequestId": tx.CheckoutRequestID,
	})
}

// Status handles GET /api/mpesa/status/{checkoutRequestID}.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	checkoutRequestID := chi.URLParam(r, "checkoutRequestID")
	if checkoutRequestID == "" {
		respondWithError(w, http.StatusBadRequest, "checkout request id is required")
		return
	}

	result, err := h.svc.GetStatus(r.Context(), checkoutRequestID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	resp := map[string]any{
		"success": true,
		"status":  result.Status,
		"orderId": result.OrderID,
		"amount":  result.Amount,
	}
	if result.ReceiptNumber != "" {
		resp["mpesaReceiptNumber"] = result.ReceiptNumber
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// stkCallback mirrors the envelope Daraja posts to the callback URL.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Callback handles POST /api/mpesa/callback. The gateway expects a zero
// ResultCode acknowledgement regardless of how processing went; anything else
// makes it re-deliver.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var cb stkCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Warn().Err(err).Msg("handler: unparseable mpesa callback")
		respondWithJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	inner := cb.Body.StkCallback
	result := payment.CallbackResult{
		CheckoutRequestID: inner.CheckoutRequestID,
		ResultCode:        inner.ResultCode,
		ResultDesc:        inner.ResultDesc,
	}
	for _, item := range inner.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.ReceiptNumber = v
			}
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = v
			}
		}
	}

	if err := h.svc.HandleCallback(r.Context(), result); err != nil {
		log.Error().Err(err).Str("checkout_request_id", inner.CheckoutRequestID).Msg("handler: failed to process mpesa callback")
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}
