// Package checkout orchestrates the path from a priced cart to a placed
// order: billing collection, debounced geocoding, coin discounting and the
// two settlement paths (gateway and cash on delivery).
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/cart"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/geocode"
	"github.com/shopkart/orderflow/internal/money"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/payment"
	"github.com/shopkart/orderflow/internal/shipping"
	"github.com/shopkart/orderflow/internal/wallet"
)

// State is the checkout progression. Payment is enabled only in
// StateReady, which requires resolved coordinates.
type State string

const (
	StateCollectingAddress State = "collecting_address"
	StateResolvingLocation State = "resolving_location"
	StateReady             State = "ready"
	StateSubmitting        State = "submitting"
	StateDone              State = "done"
)

// ErrNotReady rejects a submit before the address resolves.
var ErrNotReady = errors.New("checkout is not ready: address unresolved")

// ErrSubmitInFlight rejects a duplicate submit while one is running: the
// re-entrancy guard against double order creation.
var ErrSubmitInFlight = errors.New("a submission is already in flight")

// ErrEmptyCart rejects checkout of an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// Geocoder resolves free-text addresses; satisfied by *geocode.Client.
type Geocoder interface {
	Forward(ctx context.Context, query string) (geocode.Coordinates, error)
}

// Courier creates shipments; satisfied by *shipping.Adapter.
type Courier interface {
	CreateShipment(ctx context.Context, order orders.Order) (*shipping.ShipmentResult, error)
}

// Gateway is the payment gateway surface checkout needs.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*payment.GatewayOrder, error)
	VerifyCallback(cb payment.Callback) error
}

// Session is one user's in-progress checkout. Sessions are in-memory and
// single-owner; the mutex covers state, billing and coordinates, while the
// submit guard is a separate atomic so a duplicate submit is rejected
// without waiting on the lock.
type Session struct {
	ID     string
	UserID string
	CartID string

	mu        sync.Mutex
	state     State
	billing   cart.BillingDetails
	coords    *geocode.Coordinates
	coinsCap  bool // caller accepted the auto-applied quote
	coinsWant int64

	debouncer  *geocode.Debouncer
	submitting atomic.Bool

	carts    *cart.Store
	ledger   Ledger
	writer   *fanout.Writer
	orders   *orders.Store
	courier  Courier
	gateway  Gateway
	geocoder Geocoder
	metrics  *aws.Metrics
}

// Ledger is the wallet surface checkout needs; satisfied by
// *wallet.Ledger.
type Ledger interface {
	Balance(ctx context.Context, userID string) (wallet.Account, error)
	Quote(totalMinor, balance int64) int64
}

// NewSession starts a checkout for the user's cart.
func NewSession(userID, cartID string, carts *cart.Store, ledger Ledger, writer *fanout.Writer, orderStore *orders.Store, courier Courier, gateway Gateway, geocoder Geocoder, metrics *aws.Metrics) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CartID:    cartID,
		state:     StateCollectingAddress,
		coinsCap:  true,
		debouncer: geocode.NewDebouncer(geocode.DebounceInterval),
		carts:     carts,
		ledger:    ledger,
		writer:    writer,
		orders:    orderStore,
		courier:   courier,
		gateway:   gateway,
		geocoder:  geocoder,
		metrics:   metrics,
	}
}

// State returns the current checkout state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Coordinates returns the resolved location, or nil.
func (s *Session) Coordinates() *geocode.Coordinates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coords
}

// SetBilling updates the billing form. Each edit invalidates any resolved
// coordinates and schedules a debounced geocode; the lookup fires only
// once the address stops changing for the debounce interval and is long
// enough to be worth resolving.
func (s *Session) SetBilling(b cart.BillingDetails) {
	s.mu.Lock()
	s.billing = b
	s.coords = nil
	query := addressQuery(b)
	if len(query) < geocode.MinQueryLength {
		s.state = StateCollectingAddress
		s.mu.Unlock()
		s.debouncer.Stop()
		return
	}
	s.state = StateResolvingLocation
	s.mu.Unlock()

	s.debouncer.Schedule(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		coords, err := s.geocoder.Forward(ctx, query)
		if err != nil {
			// stay in resolving; the next edit reschedules
			return
		}
		s.mu.Lock()
		// ignore a stale resolve if the form changed meanwhile
		if addressQuery(s.billing) == query && s.state == StateResolvingLocation {
			s.coords = &coords
			s.state = StateReady
		}
		s.mu.Unlock()
	})
}

// SetCoins overrides the coin spend downward. The quote cap still applies
// at submit; requests above it are clamped, never honored.
func (s *Session) SetCoins(coins int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coinsCap = false
	s.coinsWant = coins
}

// Quote prices the cart with the coin discount applied.
type Quote struct {
	ItemsTotal    int64 `json:"items_total"`
	CoinsApplied  int64 `json:"coins_applied"`
	PayableAmount int64 `json:"payable_amount"`
}

// PriceQuote computes the current totals without placing anything.
func (s *Session) PriceQuote(ctx context.Context) (Quote, error) {
	snap, err := s.carts.Get(ctx, s.CartID)
	if err != nil {
		return Quote{}, err
	}
	if len(snap.Items) == 0 {
		return Quote{}, ErrEmptyCart
	}
	return s.price(ctx, snap)
}

func (s *Session) price(ctx context.Context, snap cart.Snapshot) (Quote, error) {
	total := snap.Total()
	acct, err := s.ledger.Balance(ctx, s.UserID)
	if err != nil {
		return Quote{}, fmt.Errorf("wallet balance: %w", err)
	}

	s.mu.Lock()
	useCap, want := s.coinsCap, s.coinsWant
	s.mu.Unlock()

	var coins int64
	if useCap {
		coins = s.ledger.Quote(total, acct.CoinBalance)
	} else {
		coins = money.ClampCoins(want, total, acct.CoinBalance)
	}

	return Quote{
		ItemsTotal:    total,
		CoinsApplied:  coins,
		PayableAmount: total - money.CoinsToMinor(coins),
	}, nil
}

// Teardown stops the pending geocode, if any.
func (s *Session) Teardown() {
	s.debouncer.Stop()
}

func addressQuery(b cart.BillingDetails) string {
	parts := []string{}
	for _, p := range []string{b.Line1, b.City, b.State, b.Pincode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
