package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dukalink/checkout-service/internal/order"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in order.DraftInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		log.Info().Err(err).Msg("handler: failed to create order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{"success": true, "order": o})
}

// GetOrderByID handles GET /orders/{id}.
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

// GetOrdersByUserID handles GET /users/{userID}/orders.
func (h *OrderHandler) GetOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.FromString(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	orders, err := h.svc.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

// UpdateOrderStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondWithError(w, http.StatusBadRequest, "status is required")
		return
	}

	if err := h.svc.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		log.Info().Err(err).Stringer("order_id", id).Msg("handler: failed to update order status")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"success": true})
}
