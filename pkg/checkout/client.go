package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the checkout service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type OrderResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Order   json.RawMessage `json:"order,omitempty"`
}

type orderIDOnly struct {
	OrderID string `json:"orderId"`
}

// CreateOrder submits the order draft and returns the server-assigned order
// id. A failure leaves no local state behind, so the caller's cart survives
// for a retry.
func (c *Client) CreateOrder(ctx context.Context, draft any) (string, error) {
	var resp OrderResponse
	if err := c.post(ctx, "/orders", draft, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("checkout: order creation rejected: %s", resp.Error)
	}

	var idHolder orderIDOnly
	if err := json.Unmarshal(resp.Order, &idHolder); err != nil || idHolder.OrderID == "" {
		return "", fmt.Errorf("checkout: order response missing order id")
	}

	return idHolder.OrderID, nil
}

type stkPushResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	CheckoutRequestID string `json:"checkoutRequestId"`
}

// InitiatePayment requests an STK push for the order and returns the
// checkout request handle used for status polling.
func (c *Client) InitiatePayment(ctx context.Context, orderID, phoneNumber string, amount float64) (string, error) {
	body := map[string]any{
		"orderId":     orderID,
		"phoneNumber": phoneNumber,
		"amount":      amount,
	}

	var resp stkPushResponse
	if err := c.post(ctx, "/api/mpesa/stk-push", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.CheckoutRequestID == "" {
		return "", fmt.Errorf("checkout: stk push rejected: %s", resp.Error)
	}

	return resp.CheckoutRequestID, nil
}

type statusResponse struct {
	Success            bool    `json:"success"`
	Error              string  `json:"error,omitempty"`
	Status             string  `json:"status"`
	MpesaReceiptNumber string  `json:"mpesaReceiptNumber,omitempty"`
	Amount             float64 `json:"amount"`
	OrderID            string  `json:"orderId"`
}

// PaymentStatus queries the reconciliation endpoint once.
func (c *Client) PaymentStatus(ctx context.Context, checkoutRequestID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/mpesa/status/"+checkoutRequestID, nil)
	if err != nil {
		return "", fmt.Errorf("checkout: failed to build status request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("checkout: status request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp statusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("checkout: failed to decode status response: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("checkout: status query rejected: %s", resp.Error)
	}

	return resp.Status, nil
}

// PollPayment runs the polling state machine against the status endpoint
// until a terminal status, the attempt budget, or ctx cancellation.
func (c *Client) PollPayment(ctx context.Context, checkoutRequestID string, opts ...Option) (PollResult, error) {
	poller := NewPoller(func(ctx context.Context) (string, error) {
		return c.PaymentStatus(ctx, checkoutRequestID)
	}, opts...)

	return poller.Run(ctx)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("checkout: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("checkout: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checkout: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("checkout: failed to decode response from %s: %w", path, err)
	}

	return nil
}
