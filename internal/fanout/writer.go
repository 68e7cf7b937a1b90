// Package fanout turns a checkout draft into the canonical order plus its
// derived records: per-seller mirrors, seller sales aggregates and the
// cashback credit. The canonical write is transactional with the
// idempotency record; everything after it is an independently retryable
// projection that must never fail the placement.
package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/idempotency"
	"github.com/shopkart/orderflow/internal/money"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/wallet"
)

// Draft is everything checkout resolved before placement.
type Draft struct {
	OrderID        string // assigned by the orchestrator
	UserID         string
	IdempotencyKey string
	LineItems      []orders.LineItem
	ItemsTotal     int64 // minor units, pre-discount
	PayableAmount  int64 // minor units, post-coin-discount
	CoinsUsed      int64
	Status         orders.Status // StatusPending (COD) or StatusPaid (gateway)
	Payment        orders.PaymentInfo
	Address        orders.AddressSnapshot
}

// Writer runs the placement fan-out.
type Writer struct {
	ledger           *wallet.Ledger
	orderStore       *orders.Store
	mirrorStore      *orders.MirrorStore
	marks            *MarkStore
	publisher        *aws.Publisher
	metrics          *aws.Metrics
	idempotencyTable string
	ttlWindow        time.Duration
	nowFunc          func() time.Time
}

// NewWriter wires the fan-out writer.
func NewWriter(ledger *wallet.Ledger, orderStore *orders.Store, mirrorStore *orders.MirrorStore, marks *MarkStore, publisher *aws.Publisher, metrics *aws.Metrics, idempotencyTable string, ttlWindow time.Duration) *Writer {
	return &Writer{
		ledger:           ledger,
		orderStore:       orderStore,
		mirrorStore:      mirrorStore,
		marks:            marks,
		publisher:        publisher,
		metrics:          metrics,
		idempotencyTable: idempotencyTable,
		ttlWindow:        ttlWindow,
		nowFunc:          time.Now,
	}
}

// Place persists the order. Steps, in order:
//  1. debit coins — failure aborts placement
//  2. transactional canonical order + idempotency record — failure aborts
//     placement and compensates the debit
//  3. per-seller mirrors
//  4. seller aggregate upserts (mark-guarded)
//  5. cashback credit (mark-guarded)
//
// Steps 3-5 never fail the placement: each failure is annotated on the
// order, returned as a warning and handed to the reconcile queue.
func (w *Writer) Place(ctx context.Context, draft Draft) ([]Warning, error) {
	cashback := money.CashbackCoins(draft.ItemsTotal)

	if draft.CoinsUsed > 0 {
		if err := w.ledger.Debit(ctx, draft.UserID, draft.CoinsUsed); err != nil {
			return nil, fmt.Errorf("coin debit: %w", err)
		}
	}

	now := w.nowFunc().UTC()
	order := orders.Order{
		OrderID:       draft.OrderID,
		UserID:        draft.UserID,
		Status:        draft.Status,
		LineItems:     draft.LineItems,
		ItemsTotal:    draft.ItemsTotal,
		PayableAmount: draft.PayableAmount,
		CoinsUsed:     draft.CoinsUsed,
		CashbackCoins: cashback,
		Payment:       draft.Payment,
		Address:       draft.Address,
		SellerIDs:     sellerIDs(draft.LineItems),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	idempItem := idempotency.Record{
		IdempotencyKey: draft.IdempotencyKey,
		Status:         idempotency.StatusInProgress,
		OrderID:        draft.OrderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := w.orderStore.CreateWithIdempotencyTransaction(ctx, w.idempotencyTable, idempItem, order, w.ttlWindow); err != nil {
		// the debit is already durable; hand the coins back before failing
		if draft.CoinsUsed > 0 {
			if cerr := w.ledger.Credit(ctx, draft.UserID, draft.CoinsUsed); cerr != nil {
				log.Printf("[fanout] order=%s compensating credit of %d coins failed: %v", draft.OrderID, draft.CoinsUsed, cerr)
				w.metrics.Count(ctx, "CoinCompensationFailed", nil)
			}
		}
		return nil, err
	}

	warnings := w.runProjections(ctx, order, nil)
	return warnings, nil
}

// Repair re-runs the named fan-out steps for an order. Called by the
// worker off a reconcile task; the mark guards make re-runs safe.
func (w *Writer) Repair(ctx context.Context, orderID string, steps []string) error {
	order, err := w.orderStore.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order for repair: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", orderID)
	}

	only := map[string]bool{}
	for _, s := range steps {
		only[s] = true
	}
	warnings := w.runProjections(ctx, *order, only)
	if len(warnings) > 0 {
		// surface to the runtime so the message is retried / DLQ'd
		return fmt.Errorf("repair of order %s left %d steps failing", orderID, len(warnings))
	}

	if err := w.orderStore.ResolveFanoutNotes(ctx, orderID, steps); err != nil {
		log.Printf("[fanout] order=%s resolve notes failed: %v", orderID, err)
	}
	return nil
}

// runProjections executes steps 3-5. only filters the steps to run; nil
// means all. Each failure is annotated, counted and queued for repair.
func (w *Writer) runProjections(ctx context.Context, order orders.Order, only map[string]bool) []Warning {
	var warnings []Warning
	var failedSteps []string

	runStep := func(step string, fn func() error) {
		if only != nil && !only[step] {
			return
		}
		if err := fn(); err != nil {
			log.Printf("[fanout] order=%s step=%s failed: %v", order.OrderID, step, err)
			warnings = append(warnings, Warning{Step: step, Message: err.Error()})
			failedSteps = append(failedSteps, step)
			w.metrics.Count(ctx, "FanoutStepFailed", map[string]string{"Step": step})
			if aerr := w.orderStore.AnnotateFanoutFailure(ctx, order.OrderID, step, err.Error()); aerr != nil {
				log.Printf("[fanout] order=%s annotate step=%s failed: %v", order.OrderID, step, aerr)
			}
		}
	}

	runStep(StepMirrors, func() error { return w.writeMirrors(ctx, order) })
	runStep(StepAggregates, func() error { return w.applyAggregates(ctx, order) })
	runStep(StepCashback, func() error { return w.creditCashback(ctx, order) })

	if len(failedSteps) > 0 && only == nil {
		task := Task{Type: TaskFanoutRepair, OrderID: order.OrderID, Steps: failedSteps}
		if err := w.publisher.SendTask(ctx, task, map[string]string{"order_id": order.OrderID}); err != nil {
			// annotation remains; a sweep over annotated orders can pick it up
			log.Printf("[fanout] order=%s enqueue repair failed: %v", order.OrderID, err)
		}
	}
	return warnings
}

// writeMirrors partitions the lines by seller and writes one projection
// per seller. Keyed puts: re-running overwrites the same items.
func (w *Writer) writeMirrors(ctx context.Context, order orders.Order) error {
	bySeller := map[string][]orders.LineItem{}
	for _, li := range order.LineItems {
		bySeller[li.SellerID] = append(bySeller[li.SellerID], li)
	}

	for sellerID, lines := range bySeller {
		var subtotal int64
		for _, li := range lines {
			subtotal += li.Subtotal()
		}
		mirror := orders.SellerOrderMirror{
			SellerID:       sellerID,
			OrderID:        order.OrderID,
			UserID:         order.UserID,
			Lines:          lines,
			SellerSubtotal: subtotal,
			Status:         order.Status,
			CreatedAt:      order.CreatedAt,
		}
		if err := w.mirrorStore.PutMirror(ctx, mirror); err != nil {
			return fmt.Errorf("mirror for seller %s: %w", sellerID, err)
		}
	}
	return nil
}

// applyAggregates bumps each seller's sales rollup exactly once per order,
// guarded by a fan-out mark per (order, seller).
func (w *Writer) applyAggregates(ctx context.Context, order orders.Order) error {
	bySeller := map[string]int64{}
	for _, li := range order.LineItems {
		bySeller[li.SellerID] += li.Subtotal()
	}

	for sellerID, subtotal := range bySeller {
		markID := fmt.Sprintf("%s#%s#%s", order.OrderID, StepAggregates, sellerID)
		acquired, err := w.marks.Acquire(ctx, markID)
		if err != nil {
			return err
		}
		if !acquired {
			continue // already applied
		}
		summary := orders.OrderSummary{
			OrderID:  order.OrderID,
			Subtotal: subtotal,
			PlacedAt: order.CreatedAt,
		}
		if err := w.mirrorStore.ApplySale(ctx, sellerID, summary); err != nil {
			if rerr := w.marks.Release(ctx, markID); rerr != nil {
				log.Printf("[fanout] order=%s release mark %s failed: %v", order.OrderID, markID, rerr)
			}
			return fmt.Errorf("aggregate for seller %s: %w", sellerID, err)
		}
	}
	return nil
}

// creditCashback credits the 1% cashback exactly once per order.
func (w *Writer) creditCashback(ctx context.Context, order orders.Order) error {
	if order.CashbackCoins <= 0 {
		return nil
	}
	markID := fmt.Sprintf("%s#%s", order.OrderID, StepCashback)
	acquired, err := w.marks.Acquire(ctx, markID)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	if err := w.ledger.Credit(ctx, order.UserID, order.CashbackCoins); err != nil {
		if rerr := w.marks.Release(ctx, markID); rerr != nil {
			log.Printf("[fanout] order=%s release mark %s failed: %v", order.OrderID, markID, rerr)
		}
		return fmt.Errorf("cashback credit: %w", err)
	}
	return nil
}

func sellerIDs(lines []orders.LineItem) []string {
	seen := map[string]bool{}
	var ids []string
	for _, li := range lines {
		if !seen[li.SellerID] {
			seen[li.SellerID] = true
			ids = append(ids, li.SellerID)
		}
	}
	return ids
}
