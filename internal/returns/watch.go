package returns

import (
	"context"
	"time"

	"github.com/shopkart/orderflow/internal/orders"
)

// StatusUpdate is one observed change of an order's status.
type StatusUpdate struct {
	OrderID string
	Status  orders.Status
}

// Watch delivers the order's status changes on the returned channel until
// ctx is cancelled or the status reaches a terminal state. One watcher per
// viewed order; cancelling ctx is the teardown, so an unmounted view does
// not leak a poller.
func (m *Machine) Watch(ctx context.Context, orderID string, interval time.Duration) <-chan StatusUpdate {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan StatusUpdate, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last orders.Status
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			order, err := m.orderStore.Get(ctx, orderID)
			if err != nil || order == nil {
				continue
			}
			if order.Status == last {
				continue
			}
			last = order.Status

			select {
			case out <- StatusUpdate{OrderID: orderID, Status: order.Status}:
			case <-ctx.Done():
				return
			}

			if order.Status.IsTerminal() {
				return
			}
		}
	}()

	return out
}
