package gateway

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
)

// Notification is the webhook payload delivered by the gateway for each
// payment state change.
type Notification struct {
	TerminalKey string      `json:"TerminalKey"`
	OrderID     string      `json:"OrderId"`
	Success     bool        `json:"Success"`
	Status      string      `json:"Status"`
	PaymentID   json.Number `json:"PaymentId"`
	Amount      int64       `json:"Amount"`
	Pan         string      `json:"Pan"`
	ErrorCode   string      `json:"ErrorCode"`
	Token       string      `json:"Token"`
}

// ParseNotification decodes the raw webhook body and verifies its signature.
// The token is recomputed over the delivered top-level fields exactly as for
// outbound requests, and compared in constant time. Any mismatch rejects the
// callback outright.
func ParseNotification(body []byte, password string) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}

	delivered, _ := raw["Token"].(string)
	if delivered == "" {
		return Notification{}, ErrInvalidSignature
	}

	expected := Token(raw, password)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(delivered)) != 1 {
		return Notification{}, ErrInvalidSignature
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
