package orders

import "time"

// Status is the closed set of order lifecycle states.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPaid            Status = "PAID"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusCancelled       Status = "CANCELLED"
	StatusReturnRequested Status = "RETURN_REQUESTED"
	StatusReturnApproved  Status = "RETURN_APPROVED"
	StatusRefundCompleted Status = "REFUND_COMPLETED"
)

// IsTerminal reports whether no further lifecycle transition applies.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefundCompleted
}

// CourierStatus tracks the courier-side shipment state on the order.
type CourierStatus string

const (
	CourierNone           CourierStatus = ""
	CourierNew            CourierStatus = "NEW"
	CourierPickupDue      CourierStatus = "PICKUP_SCHEDULED"
	CourierShipped        CourierStatus = "SHIPPED"
	CourierInTransit      CourierStatus = "IN_TRANSIT"
	CourierOutForDelivery CourierStatus = "OUT_FOR_DELIVERY"
	CourierDelivered      CourierStatus = "DELIVERED"
)

// BlocksCancellation reports whether the shipment has progressed past the
// point where cancellation is allowed.
func (c CourierStatus) BlocksCancellation() bool {
	switch c {
	case CourierShipped, CourierInTransit, CourierOutForDelivery, CourierDelivered:
		return true
	}
	return false
}

// PaymentMethod distinguishes the two settlement paths.
type PaymentMethod string

const (
	PaymentGateway        PaymentMethod = "GATEWAY"
	PaymentCashOnDelivery PaymentMethod = "COD"
)

// LineItem is one purchased product variant within an order.
type LineItem struct {
	ProductID  string `dynamodbav:"product_id" json:"product_id"`
	VariantKey string `dynamodbav:"variant_key,omitempty" json:"variant_key,omitempty"`
	Name       string `dynamodbav:"name" json:"name"`
	SKU        string `dynamodbav:"sku" json:"sku"`
	SellerID   string `dynamodbav:"seller_id" json:"seller_id"`
	UnitPrice  int64  `dynamodbav:"unit_price" json:"unit_price"` // minor units
	Quantity   int    `dynamodbav:"quantity" json:"quantity"`
	Status     Status `dynamodbav:"status,omitempty" json:"status,omitempty"` // line-level return state
}

// Subtotal returns unit price times quantity in minor units.
func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// Key identifies the line within its order.
func (li LineItem) Key() string {
	if li.VariantKey == "" {
		return li.ProductID
	}
	return li.ProductID + "#" + li.VariantKey
}

// AddressSnapshot freezes the billing address at placement time.
type AddressSnapshot struct {
	Name    string  `dynamodbav:"name" json:"name"`
	Phone   string  `dynamodbav:"phone" json:"phone"`
	Email   string  `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Line1   string  `dynamodbav:"line1" json:"line1"`
	City    string  `dynamodbav:"city" json:"city"`
	State   string  `dynamodbav:"state" json:"state"`
	Pincode string  `dynamodbav:"pincode" json:"pincode"`
	Lat     float64 `dynamodbav:"lat,omitempty" json:"lat,omitempty"`
	Lon     float64 `dynamodbav:"lon,omitempty" json:"lon,omitempty"`
}

// PaymentInfo records how the order was (or will be) settled.
type PaymentInfo struct {
	Method    PaymentMethod `dynamodbav:"method" json:"method"`
	Reference string        `dynamodbav:"reference,omitempty" json:"reference,omitempty"`
}

// ShippingInfo records the courier handoff. Attempted+Error mark a failed
// shipment creation left for reconciliation; the order stays valid.
type ShippingInfo struct {
	Attempted      bool          `dynamodbav:"attempted" json:"attempted"`
	ShipmentID     string        `dynamodbav:"shipment_id,omitempty" json:"shipment_id,omitempty"`
	CourierOrderID string        `dynamodbav:"courier_order_id,omitempty" json:"courier_order_id,omitempty"`
	CourierStatus  CourierStatus `dynamodbav:"courier_status,omitempty" json:"courier_status,omitempty"`
	Error          string        `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

// FanoutNote annotates a failed fan-out step for the reconciler.
type FanoutNote struct {
	Step     string    `dynamodbav:"step" json:"step"`
	Error    string    `dynamodbav:"error" json:"error"`
	NotedAt  time.Time `dynamodbav:"noted_at" json:"noted_at"`
	Resolved bool      `dynamodbav:"resolved" json:"resolved"`
}

// Order is the canonical record, the customer-facing source of truth.
// Mirrors and aggregates derive from it and may lag or need repair.
type Order struct {
	OrderID            string          `dynamodbav:"order_id"` // PK
	UserID             string          `dynamodbav:"user_id"`
	Status             Status          `dynamodbav:"status"`
	LineItems          []LineItem      `dynamodbav:"line_items"`
	ItemsTotal         int64           `dynamodbav:"items_total"`    // minor units, pre-discount
	PayableAmount      int64           `dynamodbav:"payable_amount"` // minor units, post-coin-discount
	CoinsUsed          int64           `dynamodbav:"coins_used"`
	CashbackCoins      int64           `dynamodbav:"cashback_coins"`
	Payment            PaymentInfo     `dynamodbav:"payment"`
	Shipping           ShippingInfo    `dynamodbav:"shipping"`
	Address            AddressSnapshot `dynamodbav:"address"`
	SellerIDs          []string        `dynamodbav:"seller_ids"`
	FanoutNotes        []FanoutNote    `dynamodbav:"fanout_notes,omitempty"`
	CancellationReason string          `dynamodbav:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `dynamodbav:"created_at"`
	UpdatedAt          time.Time       `dynamodbav:"updated_at"`
}

// SellerOrderMirror is the per-seller projection of an order: only that
// seller's lines plus a denormalized subtotal.
type SellerOrderMirror struct {
	SellerID       string     `dynamodbav:"seller_id"` // PK
	OrderID        string     `dynamodbav:"order_id"`  // SK
	UserID         string     `dynamodbav:"user_id"`
	Lines          []LineItem `dynamodbav:"lines"`
	SellerSubtotal int64      `dynamodbav:"seller_subtotal"` // minor units
	Status         Status     `dynamodbav:"status"`
	CreatedAt      time.Time  `dynamodbav:"created_at"`
	UpdatedAt      time.Time  `dynamodbav:"updated_at"`
}

// OrderSummary is one entry of a seller aggregate's rollup.
type OrderSummary struct {
	OrderID  string    `dynamodbav:"order_id" json:"order_id"`
	Subtotal int64     `dynamodbav:"subtotal" json:"subtotal"`
	PlacedAt time.Time `dynamodbav:"placed_at" json:"placed_at"`
}

// SellerAggregate is the append-only sales rollup per seller. TotalSales
// tracks the sum of non-cancelled mirror subtotals, best effort.
type SellerAggregate struct {
	SellerID       string         `dynamodbav:"seller_id"` // PK
	TotalSales     int64          `dynamodbav:"total_sales"`
	OrderSummaries []OrderSummary `dynamodbav:"order_summaries"`
	UpdatedAt      time.Time      `dynamodbav:"updated_at"`
}
