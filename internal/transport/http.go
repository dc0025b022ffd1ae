package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukalink/checkout-service/internal/handler"
	"github.com/dukalink/checkout-service/internal/order"
	"github.com/dukalink/checkout-service/internal/payment"
)

func NewRouter(orderSvc order.Service, paymentSvc payment.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	oh := handler.NewOrderHandler(orderSvc)
	ph := handler.NewPaymentHandler(paymentSvc)

	r.Post("/orders", oh.CreateOrder)
	r.Get("/orders/{id}", oh.GetOrderByID)
	r.Patch("/orders/{id}/status", oh.UpdateOrderStatus)
	r.Get("/users/{userID}/orders", oh.GetOrdersByUserID)

	r.Route("/api/mpesa", func(r chi.Router) {
		r.Post("/stk-push", ph.STKPush)
		r.Get("/status/{checkoutRequestID}", ph.Status)
		r.Post("/callback", ph.Callback)
	})

	return r
}
