/**
 * @description
 * Client for the external card processor that collects the contact-access fee.
 * Only the charge call is needed: the processor's charge id becomes the ledger
 * payment id, which is what makes replayed checkouts idempotent.
 */
package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnavailable marks transport failures and 5xx responses. Callers may retry later.
	ErrUnavailable = errors.New("payment processor unavailable")
	// ErrDeclined marks a charge the processor refused.
	ErrDeclined = errors.New("payment declined")
)

// ChargeRequest is the payload sent to the processor.
type ChargeRequest struct {
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentMethodID string            `json:"payment_method_id"`
	CustomerEmail   string            `json:"customer_email"`
	IdempotencyKey  string            `json:"-"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Charge is the processor's view of a completed charge.
type Charge struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client is an HTTP client for the payment processor.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new payment processor client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Charge collects the fee. It is called exactly once per checkout; failures are not retried here.
func (c *Client) Charge(ctx context.Context, in ChargeRequest) (*Charge, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: payment gateway URL is not configured", ErrUnavailable)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", in.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: processor returned status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrDeclined, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%w: processor returned status %d", ErrDeclined, resp.StatusCode)
	}

	var charge Charge
	if err := json.Unmarshal(respBody, &charge); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	if charge.ID == "" {
		return nil, errors.New("processor response is missing a charge id")
	}
	if charge.Status != "" && charge.Status != "succeeded" {
		return nil, fmt.Errorf("%w: charge status %s", ErrDeclined, charge.Status)
	}
	return &charge, nil
}
