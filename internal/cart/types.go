package cart

// CartLine is one product variant in the cart. StockCeiling caps the
// quantity when known; zero means the ceiling is unknown and any positive
// quantity is allowed. Ceilings come from the product lookup collaborator
// and are cached on the line.
type CartLine struct {
	ProductID    string `dynamodbav:"product_id" json:"product_id"`
	VariantKey   string `dynamodbav:"variant_key,omitempty" json:"variant_key,omitempty"`
	Name         string `dynamodbav:"name" json:"name"`
	SKU          string `dynamodbav:"sku" json:"sku"`
	SellerID     string `dynamodbav:"seller_id" json:"seller_id"`
	UnitPrice    int64  `dynamodbav:"unit_price" json:"unit_price"` // minor units
	Quantity     int    `dynamodbav:"quantity" json:"quantity"`
	StockCeiling int    `dynamodbav:"stock_ceiling,omitempty" json:"stock_ceiling,omitempty"`
}

// Key identifies the line by (product, variant).
func (l CartLine) Key() string {
	if l.VariantKey == "" {
		return l.ProductID
	}
	return l.ProductID + "#" + l.VariantKey
}

// BillingDetails is persisted alongside the items so a returning session
// finds its half-filled checkout form.
type BillingDetails struct {
	Name    string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Phone   string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	Email   string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Line1   string `dynamodbav:"line1,omitempty" json:"line1,omitempty"`
	City    string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	State   string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	Pincode string `dynamodbav:"pincode,omitempty" json:"pincode,omitempty"`
}

// Snapshot is the full cart document. Version backs the expected-version
// write guard: the cart has a single owner, so a conflict means two racing
// writers and the later one retries on fresh state.
type Snapshot struct {
	CartID  string         `dynamodbav:"cart_id" json:"cart_id"` // PK
	Items   []CartLine     `dynamodbav:"items" json:"items"`
	Billing BillingDetails `dynamodbav:"billing" json:"billing"`
	Version int64          `dynamodbav:"version" json:"version"`
}

// Total sums unit_price * quantity over all lines, in minor units.
func (s Snapshot) Total() int64 {
	var t int64
	for _, l := range s.Items {
		t += l.UnitPrice * int64(l.Quantity)
	}
	return t
}

// Find returns the line with the given key, or nil.
func (s *Snapshot) Find(key string) *CartLine {
	for i := range s.Items {
		if s.Items[i].Key() == key {
			return &s.Items[i]
		}
	}
	return nil
}
