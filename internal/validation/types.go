package validation

// AddToCartRequest is the payload for POST /carts/:cartID/items.
type AddToCartRequest struct {
	ProductID    string `json:"product_id" validate:"required"`
	VariantKey   string `json:"variant_key,omitempty"`
	Name         string `json:"name" validate:"required"`
	SKU          string `json:"sku" validate:"required"`
	SellerID     string `json:"seller_id" validate:"required"`
	UnitPrice    int64  `json:"unit_price" validate:"required,gt=0"` // minor units
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	StockCeiling int    `json:"stock_ceiling,omitempty" validate:"omitempty,min=1"`
}

// DecrementRequest is the payload for lowering a line's quantity.
type DecrementRequest struct {
	LineKey string `json:"line_key" validate:"required"`
	By      int    `json:"by" validate:"required,min=1"`
}

// BillingRequest is the checkout billing form. The address fields feed the
// geocoder, so the ones the courier needs are required here.
type BillingRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required,len=10,numeric"`
	Email   string `json:"email" validate:"omitempty,email"`
	Line1   string `json:"line1" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Pincode string `json:"pincode" validate:"required,len=6,numeric"`
}

// StartCheckoutRequest opens a checkout session.
type StartCheckoutRequest struct {
	UserID string `json:"user_id" validate:"required"`
	CartID string `json:"cart_id" validate:"required"`
}

// CoinsRequest overrides the auto-applied coin spend (downward only; the
// quote cap is enforced server-side regardless).
type CoinsRequest struct {
	Coins int64 `json:"coins" validate:"min=0"`
}

// GatewayCallbackRequest is the widget's success payload.
type GatewayCallbackRequest struct {
	GatewayOrderID string `json:"gateway_order_id" validate:"required"`
	PaymentID      string `json:"payment_id" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

// CancelOrderRequest asks for an order cancellation.
type CancelOrderRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// ReturnOrderRequest opens a return for one line of a delivered order.
// Bank fields are required only for the bank-transfer method; the IFSC
// format is checked at the struct level.
type ReturnOrderRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	LineKey       string `json:"line_key" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
	Method        string `json:"method" validate:"required,oneof=WALLET BANK_TRANSFER"`
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
}
