// Package mpesa is a client for the Safaricom Daraja STK Push API.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Daraja result codes observed on STK query responses.
const (
	ResultCodeSuccess          = 0
	ResultCodeInsufficient     = 1
	ResultCodeCancelledByUser  = 1032
	ResultCodeTimeoutOnHandset = 1037
)

// errorCode returned while the push is still awaiting the user's PIN.
const pendingErrorCode = "500.001.1001"

var (
	ErrPushRejected = errors.New("mpesa: stk push rejected by gateway")
	ErrUnauthorized = errors.New("mpesa: authentication with gateway failed")
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cached token is within 30 seconds of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa: token request returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("mpesa: failed to decode token response: %w", err)
	}

	ttl, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3600
	}

	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(ttl) * time.Second)

	return c.token, nil
}

// password builds the Lipa Na M-Pesa password: base64 of
// shortcode + passkey + timestamp, with the timestamp in yyyymmddhhmmss.
func (c *Client) password(now time.Time) (string, string) {
	timestamp := now.Format("20060102150405")
	raw := c.cfg.Shortcode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush asks the gateway to push a payment prompt to the given phone.
// Amounts are whole shillings; fractional cents are rounded up by the caller.
func (c *Client) STKPush(ctx context.Context, phone, accountRef string, amount int) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password(time.Now())
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   "Order " + accountRef,
	}

	var pushResp STKPushResponse
	if err := c.post(ctx, token, "/mpesa/stkpush/v1/processrequest", payload, &pushResp); err != nil {
		return nil, err
	}

	if pushResp.ResponseCode != "0" {
		log.Warn().Str("response_code", pushResp.ResponseCode).Str("description", pushResp.ResponseDescription).Msg("mpesa: push rejected")
		return nil, fmt.Errorf("%w: %s", ErrPushRejected, pushResp.ResponseDescription)
	}
	if pushResp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: gateway returned no checkout request id", ErrPushRejected)
	}

	return &pushResp, nil
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryResult is the outcome of an STK status query. Pending means the
// gateway has no final result yet; ResultCode is meaningful only when
// Pending is false.
type QueryResult struct {
	Pending    bool
	ResultCode int
	ResultDesc string
}

type stkQueryResponse struct {
	ResponseCode string `json:"ResponseCode"`
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// QueryStatus asks the gateway for the current state of a push attempt.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password(time.Now())
	payload := stkQueryPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var queryResp stkQueryResponse
	if err := c.post(ctx, token, "/mpesa/stkpushquery/v1/query", payload, &queryResp); err != nil {
		return nil, err
	}

	// The gateway answers an in-flight push with an error envelope rather
	// than a result code.
	if queryResp.ErrorCode == pendingErrorCode {
		return &QueryResult{Pending: true, ResultDesc: queryResp.ErrorMessage}, nil
	}
	if queryResp.ErrorCode != "" {
		return nil, fmt.Errorf("mpesa: status query failed: %s (%s)", queryResp.ErrorMessage, queryResp.ErrorCode)
	}
	if queryResp.ResultCode == "" {
		return &QueryResult{Pending: true, ResultDesc: queryResp.ResultDesc}, nil
	}

	code, err := strconv.Atoi(queryResp.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("mpesa: unparseable result code %q: %w", queryResp.ResultCode, err)
	}

	return &QueryResult{ResultCode: code, ResultDesc: queryResp.ResultDesc}, nil
}

func (c *Client) post(ctx context.Context, token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mpesa: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mpesa: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	// Daraja uses non-2xx statuses for both rejections and in-flight
	// queries, so decode the body regardless and let callers interpret it.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mpesa: failed to read response from %s: %w", path, err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("mpesa: failed to decode response from %s (status %d): %w", path, resp.StatusCode, err)
	}

	return nil
}
