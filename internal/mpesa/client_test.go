package mpesa_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukalink/checkout-service/internal/mpesa"
)

type gatewayStub struct {
	tokenCalls int
	pushCalls  int
	queryCalls int

	lastPush  map[string]any
	lastQuery map[string]any

	pushResponse  map[string]any
	queryResponse map[string]any
	queryStatus   int
}

func (g *gatewayStub) server(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/oauth/v1/generate"):
			g.tokenCalls++
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "test-key", user)
			assert.Equal(t, "test-secret", pass)
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123", "expires_in": "3599"})
		case r.URL.Path == "/mpesa/stkpush/v1/processrequest":
			g.pushCalls++
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			json.NewDecoder(r.Body).Decode(&g.lastPush)
			json.NewEncoder(w).Encode(g.pushResponse)
		case r.URL.Path == "/mpesa/stkpushquery/v1/query":
			g.queryCalls++
			json.NewDecoder(r.Body).Decode(&g.lastQuery)
			if g.queryStatus != 0 {
				w.WriteHeader(g.queryStatus)
			}
			json.NewEncoder(w).Encode(g.queryResponse)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(serverURL string) *mpesa.Client {
	return mpesa.NewClient(mpesa.Config{
		BaseURL:        serverURL,
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		Shortcode:      "174379",
		Passkey:        "test-passkey",
		CallbackURL:    "https://example.com/api/mpesa/callback",
	})
}

func TestClient_STKPush(t *testing.T) {
	stub := &gatewayStub{
		pushResponse: map[string]any{
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_123",
			"ResponseCode":      "0",
			"CustomerMessage":   "Success. Request accepted for processing",
		},
	}
	srv := stub.server(t)
	defer srv.Close()

	client := newTestClient(srv.URL)

	resp, err := client.STKPush(context.Background(), "254712345678", "order-ref-1", 3500)
	assert.NoError(t, err)
	assert.Equal(t, "ws_CO_123", resp.CheckoutRequestID)

	assert.Equal(t, "174379", stub.lastPush["BusinessShortCode"])
	assert.Equal(t, "CustomerPayBillOnline", stub.lastPush["TransactionType"])
	assert.Equal(t, "254712345678", stub.lastPush["PhoneNumber"])
	assert.Equal(t, float64(3500), stub.lastPush["Amount"])
	assert.Equal(t, "order-ref-1", stub.lastPush["AccountReference"])
	assert.Equal(t, "https://example.com/api/mpesa/callback", stub.lastPush["CallBackURL"])

	// Password is base64(shortcode + passkey + timestamp) with the same
	// timestamp echoed in the Timestamp field.
	timestamp, _ := stub.lastPush["Timestamp"].(string)
	assert.Len(t, timestamp, 14)
	decoded, err := base64.StdEncoding.DecodeString(stub.lastPush["Password"].(string))
	assert.NoError(t, err)
	assert.Equal(t, "174379"+"test-passkey"+timestamp, string(decoded))
}

func TestClient_STKPush_Rejected(t *testing.T) {
	stub := &gatewayStub{
		pushResponse: map[string]any{
			"ResponseCode":        "1",
			"ResponseDescription": "Invalid PhoneNumber",
		},
	}
	srv := stub.server(t)
	defer srv.Close()

	client := newTestClient(srv.URL)

	_, err := client.STKPush(context.Background(), "254712345678", "order-ref-1", 3500)
	assert.ErrorIs(t, err, mpesa.ErrPushRejected)
}

func TestClient_TokenIsCached(t *testing.T) {
	stub := &gatewayStub{
		pushResponse: map[string]any{"CheckoutRequestID": "ws_CO_123", "ResponseCode": "0"},
	}
	srv := stub.server(t)
	defer srv.Close()

	client := newTestClient(srv.URL)

	_, err := client.STKPush(context.Background(), "254712345678", "ref-1", 100)
	assert.NoError(t, err)
	_, err = client.STKPush(context.Background(), "254712345678", "ref-2", 200)
	assert.NoError(t, err)

	assert.Equal(t, 2, stub.pushCalls)
	assert.Equal(t, 1, stub.tokenCalls, "second push must reuse the cached token")
}

func TestClient_QueryStatus(t *testing.T) {
	tests := []struct {
		name        string
		response    map[string]any
		httpStatus  int
		wantPending bool
		wantCode    int
		wantErr     bool
	}{
		{
			name:     "completed",
			response: map[string]any{"ResponseCode": "0", "ResultCode": "0", "ResultDesc": "The service request is processed successfully."},
			wantCode: mpesa.ResultCodeSuccess,
		},
		{
			name:     "cancelled_by_user",
			response: map[string]any{"ResponseCode": "0", "ResultCode": "1032", "ResultDesc": "Request cancelled by user"},
			wantCode: mpesa.ResultCodeCancelledByUser,
		},
		{
			name:        "still_processing",
			response:    map[string]any{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"},
			httpStatus:  http.StatusInternalServerError,
			wantPending: true,
		},
		{
			name:       "other_gateway_error",
			response:   map[string]any{"errorCode": "404.001.04", "errorMessage": "Invalid CheckoutRequestID"},
			httpStatus: http.StatusNotFound,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &gatewayStub{queryResponse: tt.response, queryStatus: tt.httpStatus}
			srv := stub.server(t)
			defer srv.Close()

			client := newTestClient(srv.URL)

			result, err := client.QueryStatus(context.Background(), "ws_CO_123")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantPending, result.Pending)
			if !tt.wantPending {
				assert.Equal(t, tt.wantCode, result.ResultCode)
			}
		})
	}
}
