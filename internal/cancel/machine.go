// Package cancel drives an order from active to cancelled. The
// customer-facing cancellation is authoritative: the order is marked
// cancelled on every reachable terminal outcome, including when the
// courier-side cancellation failed and was left for reconciliation.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/shipping"
)

// ErrOrderNotFound indicates the order id resolves to nothing.
var ErrOrderNotFound = errors.New("order not found")

// ErrNotCancellable rejects cancellation of a shipment already on the
// road. Terminal guard: no state is written.
var ErrNotCancellable = errors.New("order is past the cancellation window")

// ErrAlreadyCancelled rejects a duplicate cancellation; idempotent from
// the user's perspective.
var ErrAlreadyCancelled = errors.New("cancellation already in progress")

// Courier is the slice of the shipping adapter the machine needs.
type Courier interface {
	CancelShipment(ctx context.Context, courierOrderID string) error
}

// Machine coordinates the cancellation writes.
type Machine struct {
	orderStore  *orders.Store
	mirrorStore *orders.MirrorStore
	requests    *orders.RequestStore
	courier     Courier
	publisher   *aws.Publisher
	metrics     *aws.Metrics
}

// NewMachine wires a cancellation Machine.
func NewMachine(orderStore *orders.Store, mirrorStore *orders.MirrorStore, requests *orders.RequestStore, courier Courier, publisher *aws.Publisher, metrics *aws.Metrics) *Machine {
	return &Machine{
		orderStore:  orderStore,
		mirrorStore: mirrorStore,
		requests:    requests,
		courier:     courier,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// Request cancels the order. Outcomes:
//   - no courier reference: PENDING_RECONCILE, the worker settles later
//   - courier cancel ok: COMPLETED
//   - courier cancel failed: COURIER_FAILED with needs_reconcile
//
// In every outcome the order status becomes CANCELLED with the reason
// recorded, and the seller mirrors follow.
func (m *Machine) Request(ctx context.Context, orderID, userID, reason string) (*orders.CancelRequest, error) {
	order, err := m.orderStore.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == orders.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if order.Shipping.CourierStatus.BlocksCancellation() ||
		order.Status == orders.StatusShipped || order.Status == orders.StatusDelivered {
		return nil, ErrNotCancellable
	}

	// claim the one-active-request slot before touching anything else
	req := orders.CancelRequest{
		OrderID:         orderID,
		UserID:          userID,
		Reason:          reason,
		Outcome:         orders.CancelPendingReconcile,
		ResultingStatus: orders.StatusCancelled,
		NeedsReconcile:  true,
	}
	if err := m.requests.CreateCancel(ctx, req); err != nil {
		if errors.Is(err, orders.ErrDuplicateRequest) {
			return nil, ErrAlreadyCancelled
		}
		return nil, err
	}

	outcome := orders.CancelPendingReconcile
	needsReconcile := true
	courierResponse := ""

	if order.Shipping.CourierOrderID != "" {
		if err := m.courier.CancelShipment(ctx, order.Shipping.CourierOrderID); err != nil {
			outcome = orders.CancelCourierFailed
			courierResponse = err.Error()
			var cerr *shipping.CourierError
			if errors.As(err, &cerr) && cerr.Body != "" {
				courierResponse = cerr.Body
			}
			m.metrics.Count(ctx, "CourierCancelFailed", nil)
		} else {
			outcome = orders.CancelCompleted
			needsReconcile = false
		}
	}

	if err := m.requests.UpdateCancelOutcome(ctx, orderID, outcome, needsReconcile, courierResponse); err != nil {
		log.Printf("[cancel] order=%s update outcome failed: %v", orderID, err)
	}

	// authoritative regardless of courier-side success
	if err := m.orderStore.SetCancelled(ctx, orderID, reason); err != nil {
		return nil, fmt.Errorf("mark order cancelled: %w", err)
	}
	for _, sellerID := range order.SellerIDs {
		if err := m.mirrorStore.SetMirrorStatus(ctx, sellerID, orderID, orders.StatusCancelled); err != nil {
			log.Printf("[cancel] order=%s mirror seller=%s failed: %v", orderID, sellerID, err)
		}
	}

	if needsReconcile {
		task := fanout.Task{Type: fanout.TaskCourierReconcile, OrderID: orderID}
		if err := m.publisher.SendTask(ctx, task, map[string]string{"order_id": orderID}); err != nil {
			log.Printf("[cancel] order=%s enqueue reconcile failed: %v", orderID, err)
		}
	}

	req.Outcome = outcome
	req.NeedsReconcile = needsReconcile
	req.CourierResponse = courierResponse
	return &req, nil
}

// Reconcile finishes a cancellation left in PENDING_RECONCILE or
// COURIER_FAILED. Run by the worker; safe to re-run.
func (m *Machine) Reconcile(ctx context.Context, orderID string) error {
	req, err := m.requests.GetCancel(ctx, orderID)
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("no cancel request for order %s", orderID)
	}
	if !req.NeedsReconcile {
		return nil
	}

	order, err := m.orderStore.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	if order.Shipping.CourierOrderID == "" {
		// nothing was ever created courier-side; local cancellation stands
		return m.requests.UpdateCancelOutcome(ctx, orderID, orders.CancelCompleted, false, req.CourierResponse)
	}

	if err := m.courier.CancelShipment(ctx, order.Shipping.CourierOrderID); err != nil {
		m.metrics.Count(ctx, "CourierCancelFailed", nil)
		// keep needs_reconcile set; the runtime retries the task
		return fmt.Errorf("courier cancel retry for order %s: %w", orderID, err)
	}
	return m.requests.UpdateCancelOutcome(ctx, orderID, orders.CancelCompleted, false, req.CourierResponse)
}
