// Package payment wraps the card/UPI gateway. The gateway order is created
// server-side before the client widget opens; the success callback is
// verified by HMAC signature before the order is finalized.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// MinAmountMinor is the gateway's minimum chargeable amount (one
	// rupee in paise); smaller amounts are rejected before any call.
	MinAmountMinor = 100

	defaultTimeout = 20 * time.Second
)

// ErrAmountBelowMinimum rejects sub-minimum charges.
var ErrAmountBelowMinimum = errors.New("amount below gateway minimum")

// ErrBadSignature rejects a success callback whose signature does not
// match; the payment cannot be trusted and the order is not placed.
var ErrBadSignature = errors.New("payment signature mismatch")

// GatewayOrder is the gateway-side order handed to the client widget.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Callback is the success payload returned by the widget.
type Callback struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
}

// Gateway creates gateway orders and verifies callbacks.
type Gateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewGateway returns a Gateway using basic-auth API credentials.
func NewGateway(baseURL, keyID, keySecret string) *Gateway {
	return &Gateway{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// CreateOrder registers a payable amount with the gateway. A failure here
// happens before any money moves and before the canonical order exists, so
// it blocks placement entirely.
func (g *Gateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error) {
	if amountMinor < MinAmountMinor {
		return nil, ErrAmountBelowMinimum
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gateway order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway status %d: %s", resp.StatusCode, raw)
	}

	var order GatewayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode gateway order: %w", err)
	}
	return &order, nil
}

// VerifyCallback checks the HMAC-SHA256 signature over
// "<gateway_order_id>|<payment_id>" against the key secret.
func (g *Gateway) VerifyCallback(cb Callback) error {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	fmt.Fprintf(mac, "%s|%s", cb.GatewayOrderID, cb.PaymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return ErrBadSignature
	}
	return nil
}
