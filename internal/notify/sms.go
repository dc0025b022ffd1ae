// Package notify sends transactional SMS through an HTTP SMS gateway.
// Delivery is best-effort; callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Config struct {
	Endpoint string
	APIKey   string
	SenderID string
}

type SMSSender struct {
	cfg        Config
	httpClient *http.Client
}

func NewSMSSender(cfg Config) *SMSSender {
	return &SMSSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (s *SMSSender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(smsRequest{To: phone, From: s.cfg.SenderID, Message: message})
	if err != nil {
		return fmt.Errorf("notify: failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sms gateway returned status %d", resp.StatusCode)
	}

	return nil
}
