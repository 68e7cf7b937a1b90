// Package shipping talks to the external courier API. Failures come back
// as tagged *CourierError values, never as a fatal error for an already
// accepted order; callers persist the failure for later reconciliation.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopkart/orderflow/internal/orders"
)

const defaultTimeout = 15 * time.Second

// CourierError tags a courier-side failure and carries the raw response
// body so it can be recorded on the cancel/order record.
type CourierError struct {
	Op         string // "create" or "cancel"
	StatusCode int
	Body       string
	Err        error
}

func (e *CourierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("courier %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("courier %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *CourierError) Unwrap() error { return e.Err }

// ShipmentResult is the courier's handle for a created shipment.
type ShipmentResult struct {
	ShipmentID     string `json:"shipment_id"`
	CourierOrderID string `json:"order_id"`
	Status         string `json:"status"`
	RawResponse    string `json:"-"`
}

type shipmentItem struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Units        int    `json:"units"`
	SellingPrice string `json:"selling_price"`
}

type createShipmentRequest struct {
	OrderID             string         `json:"order_id"`
	OrderDate           string         `json:"order_date"`
	BillingCustomerName string         `json:"billing_customer_name"`
	BillingAddress      string         `json:"billing_address"`
	BillingCity         string         `json:"billing_city"`
	BillingPincode      string         `json:"billing_pincode"`
	BillingState        string         `json:"billing_state"`
	BillingPhone        string         `json:"billing_phone"`
	OrderItems          []shipmentItem `json:"order_items"`
	PaymentMethod       string         `json:"payment_method"`
	SubTotal            string         `json:"sub_total"`
	Length              float64        `json:"length"`
	Breadth             float64        `json:"breadth"`
	Height              float64        `json:"height"`
	Weight              float64        `json:"weight"`
}

// Adapter is the courier HTTP client. Parcel dimensions are fixed store
// defaults; the courier re-measures at pickup anyway.
type Adapter struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	nowFunc    func() time.Time
}

// NewAdapter returns an Adapter for the courier at baseURL. The client
// carries an explicit timeout so a courier hang cannot stall a caller
// indefinitely.
func NewAdapter(baseURL, authToken string) *Adapter {
	return &Adapter{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
		nowFunc:    time.Now,
	}
}

// CreateShipment registers the order with the courier and returns the
// shipment handle. COD only; gateway-paid orders ship through a separate
// fulfilment flow on the courier side.
func (a *Adapter) CreateShipment(ctx context.Context, order orders.Order) (*ShipmentResult, error) {
	items := make([]shipmentItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		items = append(items, shipmentItem{
			Name:         li.Name,
			SKU:          li.SKU,
			Units:        li.Quantity,
			SellingPrice: minorToDecimalString(li.UnitPrice),
		})
	}

	req := createShipmentRequest{
		OrderID:             order.OrderID,
		OrderDate:           a.nowFunc().Format("2006-01-02 15:04"),
		BillingCustomerName: order.Address.Name,
		BillingAddress:      order.Address.Line1,
		BillingCity:         order.Address.City,
		BillingPincode:      order.Address.Pincode,
		BillingState:        order.Address.State,
		BillingPhone:        order.Address.Phone,
		OrderItems:          items,
		PaymentMethod:       "COD",
		SubTotal:            minorToDecimalString(order.PayableAmount),
		Length:              10,
		Breadth:             10,
		Height:              10,
		Weight:              0.5,
	}

	var result ShipmentResult
	raw, err := a.post(ctx, "/v1/external/orders/create/adhoc", req, &result)
	if err != nil {
		return nil, err
	}
	result.RawResponse = raw
	return &result, nil
}

// CancelShipment asks the courier to cancel its side of the order. A
// failure here does not block the local cancellation; the caller records
// needs_reconcile and moves on.
func (a *Adapter) CancelShipment(ctx context.Context, courierOrderID string) error {
	req := map[string]string{"orderId": courierOrderID}
	var resp struct {
		Success bool `json:"success"`
	}
	raw, err := a.post(ctx, "/v1/external/orders/cancel", req, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &CourierError{Op: "cancel", StatusCode: http.StatusOK, Body: raw}
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, path string, body, out interface{}) (string, error) {
	op := "create"
	if path == "/v1/external/orders/cancel" {
		op = "cancel"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &CourierError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", &CourierError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &CourierError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &CourierError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &CourierError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return "", &CourierError{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	return string(raw), nil
}

// minorToDecimalString renders paise as a rupee string, e.g. 123450 -> "1234.50".
func minorToDecimalString(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
