package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dukalink/checkout-service/internal/payment"
)

type mockPaymentService struct {
	initiateFunc       func(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*payment.Transaction, error)
	getStatusFunc      func(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error)
	handleCallbackFunc func(ctx context.Context, cb payment.CallbackResult) error
}

func (m *mockPaymentService) Initiate(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*payment.Transaction, error) {
	return m.initiateFunc(ctx, orderID, phone, amount)
}

func (m *mockPaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
	return m.getStatusFunc(ctx, checkoutRequestID)
}

func (m *mockPaymentService) HandleCallback(ctx context.Context, cb payment.CallbackResult) error {
	return m.handleCallbackFunc(ctx, cb)
}

var testOrderID = uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

func TestPaymentHandler_STKPush(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		initiate       func(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*payment.Transaction, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success",
			body: `{"orderId":"550e8400-e29b-41d4-a716-446655440000","phoneNumber":"0712345678","amount":3500}`,
			initiate: func(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*payment.Transaction, error) {
				return &payment.Transaction{CheckoutRequestID: "ws_CO_123", OrderID: orderID, Status: payment.StatusPending}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"checkoutRequestId":"ws_CO_123","success":true}`,
		},
		{
			name:           "invalid_order_id",
			body:           `{"orderId":"not-a-uuid","phoneNumber":"0712345678","amount":3500}`,
			initiate:       nil,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid_body",
			body:           `{`,
			initiate:       nil,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{initiateFunc: tt.initiate}
			h := NewPaymentHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/mpesa/stk-push", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			h.STKPush(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func statusRequest(t *testing.T, h *PaymentHandler, checkoutRequestID string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/api/mpesa/status/{checkoutRequestID}", h.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/mpesa/status/"+checkoutRequestID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func TestPaymentHandler_Status(t *testing.T) {
	t.Run("completed_with_receipt", func(t *testing.T) {
		svc := &mockPaymentService{
			getStatusFunc: func(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
				assert.Equal(t, "ws_CO_123", checkoutRequestID)
				return &payment.StatusResult{
					Status:        payment.StatusCompleted,
					ReceiptNumber: "QGR7TKXXM1",
					OrderID:       testOrderID,
					Amount:        3500,
				}, nil
			},
		}
		rec := statusRequest(t, NewPaymentHandler(svc), "ws_CO_123")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"success": true,
			"status": "completed",
			"mpesaReceiptNumber": "QGR7TKXXM1",
			"orderId": "550e8400-e29b-41d4-a716-446655440000",
			"amount": 3500
		}`, rec.Body.String())
	})

	t.Run("pending_omits_receipt", func(t *testing.T) {
		svc := &mockPaymentService{
			getStatusFunc: func(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
				return &payment.StatusResult{Status: payment.StatusPending, OrderID: testOrderID, Amount: 3500}, nil
			},
		}
		rec := statusRequest(t, NewPaymentHandler(svc), "ws_CO_123")

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "pending", body["status"])
		assert.NotContains(t, body, "mpesaReceiptNumber")
	})

	t.Run("unknown_transaction_is_404", func(t *testing.T) {
		svc := &mockPaymentService{
			getStatusFunc: func(ctx context.Context, checkoutRequestID string) (*payment.StatusResult, error) {
				return nil, payment.ErrTransactionNotFound
			},
		}
		rec := statusRequest(t, NewPaymentHandler(svc), "ws_CO_unknown")

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
	})
}

func TestPaymentHandler_Callback(t *testing.T) {
	callbackBody := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 3500.00},
						{"Name": "MpesaReceiptNumber", "Value": "QGR7TKXXM1"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`

	t.Run("extracts_receipt_and_amount", func(t *testing.T) {
		var got payment.CallbackResult
		svc := &mockPaymentService{
			handleCallbackFunc: func(ctx context.Context, cb payment.CallbackResult) error {
				got = cb
				return nil
			},
		}
		h := NewPaymentHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/api/mpesa/callback", bytes.NewBufferString(callbackBody))
		rec := httptest.NewRecorder()
		h.Callback(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
		assert.Equal(t, "ws_CO_123", got.CheckoutRequestID)
		assert.Equal(t, 0, got.ResultCode)
		assert.Equal(t, "QGR7TKXXM1", got.ReceiptNumber)
		assert.Equal(t, 3500.0, got.Amount)
	})

	t.Run("processing_failure_still_acknowledged", func(t *testing.T) {
		svc := &mockPaymentService{
			handleCallbackFunc: func(ctx context.Context, cb payment.CallbackResult) error {
				return payment.ErrTransactionNotFound
			},
		}
		h := NewPaymentHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/api/mpesa/callback", bytes.NewBufferString(callbackBody))
		rec := httptest.NewRecorder()
		h.Callback(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
	})
}
