package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AnalysisTrigger starts the downstream document analysis for a paid
// contract. It is an external collaborator: failures after the financial
// state committed are logged by callers and never retried through the
// payment path.
type AnalysisTrigger interface {
	Start(ctx context.Context, contractID string) error
}

// HTTPTrigger posts to the analysis pipeline's internal endpoint.
type HTTPTrigger struct {
	baseURL       string
	webhookSecret string
	client        *http.Client
}

// NewHTTPTrigger builds the HTTP analysis trigger.
func NewHTTPTrigger(baseURL, webhookSecret string) *HTTPTrigger {
	return &HTTPTrigger{
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Start requests analysis of the contract.
func (t *HTTPTrigger) Start(ctx context.Context, contractID string) error {
	payload, err := json.Marshal(map[string]string{"contractId": contractID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/contracts/analyze", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Token", t.webhookSecret)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("analysis endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// StaticTrigger acknowledges every request. Used for wiring without the
// analysis pipeline and in tests.
type StaticTrigger struct{}

// Start reports success without side effects.
func (StaticTrigger) Start(_ context.Context, _ string) error {
	return nil
}
