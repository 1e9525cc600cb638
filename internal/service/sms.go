package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSSender sends access codes over SMS.
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// HTTPSMSSender posts codes to the external SMS relay.
type HTTPSMSSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSMSSender creates a sender targeting the given relay endpoint.
func NewHTTPSMSSender(endpoint string) *HTTPSMSSender {
	return &HTTPSMSSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSMSSender) SendCode(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": fmt.Sprintf("Teleglass access code: %s", code),
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: relay returned %s", resp.Status)
	}
	return nil
}
