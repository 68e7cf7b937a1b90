package checkout

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/payment"
)

// Result is a completed placement.
type Result struct {
	OrderID  string           `json:"order_id"`
	Status   orders.Status    `json:"status"`
	Quote    Quote            `json:"quote"`
	Warnings []fanout.Warning `json:"warnings,omitempty"`
}

// SubmitCOD places a pay-on-delivery order: the canonical write carries
// status PENDING, then the shipment is created best-effort — a courier
// failure is recorded on the order and surfaced as a warning, never as a
// placement failure.
func (s *Session) SubmitCOD(ctx context.Context, idempotencyKey string) (*Result, error) {
	release, err := s.beginSubmit()
	if err != nil {
		return nil, err
	}
	defer release()

	draft, quote, err := s.buildDraft(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	draft.Status = orders.StatusPending
	draft.Payment = orders.PaymentInfo{Method: orders.PaymentCashOnDelivery}

	warnings, err := s.writer.Place(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, "OrderPlaced", map[string]string{"Method": "COD"})

	warnings = append(warnings, s.createShipment(ctx, draft.OrderID)...)
	s.finish(ctx)

	return &Result{OrderID: draft.OrderID, Status: orders.StatusPending, Quote: quote, Warnings: warnings}, nil
}

// BeginGatewayPayment registers the payable amount with the gateway.
// Failure here is pre-payment and pre-order: it blocks placement entirely.
func (s *Session) BeginGatewayPayment(ctx context.Context) (*payment.GatewayOrder, error) {
	s.mu.Lock()
	ready := s.state == StateReady
	s.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	quote, err := s.PriceQuote(ctx)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateway.CreateOrder(ctx, quote.PayableAmount, "INR", s.ID)
	if err != nil {
		return nil, fmt.Errorf("gateway order: %w", err)
	}
	return gw, nil
}

// CompleteGatewayPayment consumes the widget's success callback: the
// signature is verified, then the order is placed as PAID with the
// gateway's payment reference.
func (s *Session) CompleteGatewayPayment(ctx context.Context, idempotencyKey string, cb payment.Callback) (*Result, error) {
	if err := s.gateway.VerifyCallback(cb); err != nil {
		return nil, err
	}

	release, err := s.beginSubmit()
	if err != nil {
		return nil, err
	}
	defer release()

	draft, quote, err := s.buildDraft(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	draft.Status = orders.StatusPaid
	draft.Payment = orders.PaymentInfo{Method: orders.PaymentGateway, Reference: cb.PaymentID}

	warnings, err := s.writer.Place(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.metrics.Count(ctx, "OrderPlaced", map[string]string{"Method": "GATEWAY"})
	s.finish(ctx)

	return &Result{OrderID: draft.OrderID, Status: orders.StatusPaid, Quote: quote, Warnings: warnings}, nil
}

// beginSubmit flips the re-entrancy guard and moves the session into
// StateSubmitting. The returned release restores StateReady on failure
// paths; finish() overrides it to StateDone on success.
func (s *Session) beginSubmit() (func(), error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		s.submitting.Store(false)
		return nil, ErrNotReady
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.state == StateSubmitting {
			s.state = StateReady
		}
		s.mu.Unlock()
		s.submitting.Store(false)
	}, nil
}

func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	s.state = StateDone
	s.mu.Unlock()
	if err := s.carts.Clear(ctx, s.CartID); err != nil {
		log.Printf("[checkout] session=%s clear cart failed: %v", s.ID, err)
	}
	s.debouncer.Stop()
}

// buildDraft snapshots the cart, prices the coin discount and freezes the
// address.
func (s *Session) buildDraft(ctx context.Context, idempotencyKey string) (fanout.Draft, Quote, error) {
	snap, err := s.carts.Get(ctx, s.CartID)
	if err != nil {
		return fanout.Draft{}, Quote{}, err
	}
	if len(snap.Items) == 0 {
		return fanout.Draft{}, Quote{}, ErrEmptyCart
	}

	quote, err := s.price(ctx, snap)
	if err != nil {
		return fanout.Draft{}, Quote{}, err
	}

	s.mu.Lock()
	billing := s.billing
	coords := s.coords
	s.mu.Unlock()

	address := orders.AddressSnapshot{
		Name:    billing.Name,
		Phone:   billing.Phone,
		Email:   billing.Email,
		Line1:   billing.Line1,
		City:    billing.City,
		State:   billing.State,
		Pincode: billing.Pincode,
	}
	if coords != nil {
		address.Lat = coords.Lat
		address.Lon = coords.Lon
	}

	lines := make([]orders.LineItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		lines = append(lines, orders.LineItem{
			ProductID:  it.ProductID,
			VariantKey: it.VariantKey,
			Name:       it.Name,
			SKU:        it.SKU,
			SellerID:   it.SellerID,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
		})
	}

	return fanout.Draft{
		OrderID:        uuid.NewString(),
		UserID:         s.UserID,
		IdempotencyKey: idempotencyKey,
		LineItems:      lines,
		ItemsTotal:     quote.ItemsTotal,
		PayableAmount:  quote.PayableAmount,
		CoinsUsed:      quote.CoinsApplied,
		Address:        address,
	}, quote, nil
}

// createShipment hands the fresh order to the courier. Best effort: the
// outcome, success or failure, is persisted on the order either way.
func (s *Session) createShipment(ctx context.Context, orderID string) []fanout.Warning {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil || order == nil {
		log.Printf("[checkout] order=%s reload for shipment failed: %v", orderID, err)
		return []fanout.Warning{{Step: "shipment", Message: "order reload failed"}}
	}

	result, err := s.courier.CreateShipment(ctx, *order)
	info := orders.ShippingInfo{Attempted: true}
	if err != nil {
		info.Error = err.Error()
		s.metrics.Count(ctx, "ShipmentCreateFailed", nil)
		if serr := s.orders.SetShipping(ctx, orderID, info); serr != nil {
			log.Printf("[checkout] order=%s record shipment failure failed: %v", orderID, serr)
		}
		return []fanout.Warning{{Step: "shipment", Message: err.Error()}}
	}

	info.ShipmentID = result.ShipmentID
	info.CourierOrderID = result.CourierOrderID
	info.CourierStatus = orders.CourierNew
	if serr := s.orders.SetShipping(ctx, orderID, info); serr != nil {
		log.Printf("[checkout] order=%s record shipment failed: %v", orderID, serr)
		return []fanout.Warning{{Step: "shipment", Message: serr.Error()}}
	}
	return nil
}
