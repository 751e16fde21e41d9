package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// HTTPClient talks to the gateway's JSON API over HTTP. Every request is
// signed with the shared-secret token scheme before sending.
type HTTPClient struct {
	baseURL     string
	terminalKey string
	secretKey   string
	client      *http.Client
}

// NewHTTPClient builds a gateway client for the given terminal credentials.
func NewHTTPClient(baseURL, terminalKey, secretKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		terminalKey: terminalKey,
		secretKey:   secretKey,
		client:      &http.Client{Timeout: requestTimeout},
	}
}

type apiResponse struct {
	Success    bool        `json:"Success"`
	ErrorCode  string      `json:"ErrorCode"`
	Message    string      `json:"Message"`
	Details    string      `json:"Details"`
	Status     string      `json:"Status"`
	PaymentID  json.Number `json:"PaymentId"`
	PaymentURL string      `json:"PaymentURL"`
	Amount     int64       `json:"Amount"`
}

// Init opens a payment and returns the redirect URL and gateway identifier.
func (c *HTTPClient) Init(ctx context.Context, req InitRequest) (InitResult, error) {
	params := map[string]any{
		"TerminalKey": c.terminalKey,
		"Amount":      req.Amount,
		"OrderId":     req.OrderID,
	}
	if req.Description != "" {
		params["Description"] = req.Description
	}
	if req.CustomerKey != "" {
		params["CustomerKey"] = req.CustomerKey
	}
	if req.SuccessURL != "" {
		params["SuccessURL"] = req.SuccessURL
	}
	if req.FailURL != "" {
		params["FailURL"] = req.FailURL
	}
	if req.Email != "" {
		// excluded from the signature together with Receipt
		params["DATA"] = map[string]string{"Email": req.Email}
		params["Receipt"] = map[string]any{
			"Email":    req.Email,
			"Taxation": "usn_income",
			"Items": []map[string]any{{
				"Name":          req.Description,
				"Price":         req.Amount,
				"Quantity":      1,
				"Amount":        req.Amount,
				"Tax":           "none",
				"PaymentMethod": "full_payment",
				"PaymentObject": "service",
			}},
		}
	}

	resp, err := c.post(ctx, "/Init", params)
	if err != nil {
		return InitResult{}, err
	}

	return InitResult{
		PaymentID:  resp.PaymentID.String(),
		PaymentURL: resp.PaymentURL,
		Status:     resp.Status,
	}, nil
}

// GetState queries the current payment status.
func (c *HTTPClient) GetState(ctx context.Context, paymentID string) (StateResult, error) {
	resp, err := c.post(ctx, "/GetState", map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
	})
	if err != nil {
		return StateResult{}, err
	}
	return StateResult{PaymentID: resp.PaymentID.String(), Status: resp.Status, Amount: resp.Amount}, nil
}

// Cancel voids or refunds a payment; amount 0 cancels the full amount.
func (c *HTTPClient) Cancel(ctx context.Context, paymentID string, amount int64) (StateResult, error) {
	params := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
	}
	if amount > 0 {
		params["Amount"] = amount
	}

	resp, err := c.post(ctx, "/Cancel", params)
	if err != nil {
		return StateResult{}, err
	}
	return StateResult{PaymentID: resp.PaymentID.String(), Status: resp.Status, Amount: resp.Amount}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, params map[string]any) (apiResponse, error) {
	params["Token"] = Token(params, c.secretKey)

	payload, err := json.Marshal(params)
	if err != nil {
		return apiResponse{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apiResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return apiResponse{}, fmt.Errorf("gateway request: %w", err)
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return apiResponse{}, fmt.Errorf("decode gateway response: %w", err)
	}

	if !resp.Success {
		return apiResponse{}, &Error{Code: resp.ErrorCode, Message: resp.Message, Details: resp.Details}
	}
	return resp, nil
}
