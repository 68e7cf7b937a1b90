// Package returns drives a delivered line item through
// return-requested -> approved -> refund-completed. Wallet refunds are
// instant: the coins land when the request is created, with no approval
// gate. Bank-transfer refunds settle out of band.
package returns

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/money"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/wallet"
)

// ErrOrderNotFound indicates the order id resolves to nothing.
var ErrOrderNotFound = errors.New("order not found")

// ErrNotDelivered rejects returns on orders that have not been delivered.
var ErrNotDelivered = errors.New("order is not delivered")

// ErrLineNotFound indicates the line key is not on the order.
var ErrLineNotFound = errors.New("line item not found on order")

// ErrAlreadyRequested rejects a second return on the same order.
var ErrAlreadyRequested = errors.New("return already in progress")

// ErrBankDetailsRequired rejects a bank-transfer return without details.
var ErrBankDetailsRequired = errors.New("bank details required for bank transfer refund")

// Machine coordinates return requests and refund settlement.
type Machine struct {
	orderStore *orders.Store
	requests   *orders.RequestStore
	ledger     *wallet.Ledger
	metrics    *aws.Metrics
}

// NewMachine wires a returns Machine.
func NewMachine(orderStore *orders.Store, requests *orders.RequestStore, ledger *wallet.Ledger, metrics *aws.Metrics) *Machine {
	return &Machine{
		orderStore: orderStore,
		requests:   requests,
		ledger:     ledger,
		metrics:    metrics,
	}
}

// Request opens a return for one line of a delivered order. The refund is
// the line's proportional share of what was actually paid; the coin share
// spent on that proportion is recorded on the request for audit.
func (m *Machine) Request(ctx context.Context, orderID, userID, lineKey, reason string, method orders.RefundMethod, bank *orders.BankDetails) (*orders.ReturnRequest, error) {
	if method == orders.RefundBankTransfer && bank == nil {
		return nil, ErrBankDetailsRequired
	}

	order, err := m.orderStore.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	// the order leaves DELIVERED as soon as a return opens, so the
	// duplicate check has to come before the delivered guard
	existing, err := m.requests.GetReturn(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyRequested
	}

	if order.Status != orders.StatusDelivered {
		return nil, ErrNotDelivered
	}

	var line *orders.LineItem
	for i := range order.LineItems {
		if order.LineItems[i].Key() == lineKey {
			line = &order.LineItems[i]
			break
		}
	}
	if line == nil {
		return nil, ErrLineNotFound
	}

	lineTotal := line.Subtotal()
	refundAmount := money.RefundShare(order.PayableAmount, lineTotal, order.ItemsTotal)
	coinsToRefund := money.ProrateCoins(order.CoinsUsed, lineTotal, order.ItemsTotal)

	req := orders.ReturnRequest{
		OrderID:         orderID,
		UserID:          userID,
		LineKey:         lineKey,
		Reason:          reason,
		Method:          method,
		RefundAmount:    refundAmount,
		CoinsToRefund:   coinsToRefund,
		Bank:            bank,
		ResultingStatus: orders.StatusReturnRequested,
	}

	if err := m.requests.CreateReturn(ctx, req); err != nil {
		if errors.Is(err, orders.ErrDuplicateRequest) {
			return nil, ErrAlreadyRequested
		}
		return nil, err
	}

	// instant-refund policy for the wallet path
	if method == orders.RefundWallet {
		coins := money.RefundCoins(refundAmount)
		if coins > 0 {
			if err := m.ledger.Credit(ctx, userID, coins); err != nil {
				// request stands; the credit is retried via the audit trail
				log.Printf("[returns] order=%s wallet credit of %d coins failed: %v", orderID, coins, err)
				m.metrics.Count(ctx, "ReturnWalletCreditFailed", nil)
			} else {
				req.WalletCredited = true
				if err := m.requests.SetReturnWalletCredited(ctx, orderID); err != nil {
					log.Printf("[returns] order=%s record wallet credit failed: %v", orderID, err)
				}
			}
		}
	}

	// mark the line and the order
	line.Status = orders.StatusReturnRequested
	if err := m.orderStore.SetLineItems(ctx, orderID, order.LineItems); err != nil {
		log.Printf("[returns] order=%s mark line failed: %v", orderID, err)
	}
	if err := m.orderStore.UpdateStatus(ctx, orderID, orders.StatusDelivered, orders.StatusReturnRequested); err != nil {
		log.Printf("[returns] order=%s mark order failed: %v", orderID, err)
	}

	return &req, nil
}

// Approve moves the return to RETURN_APPROVED.
func (m *Machine) Approve(ctx context.Context, orderID string) error {
	if err := m.orderStore.UpdateStatus(ctx, orderID, orders.StatusReturnRequested, orders.StatusReturnApproved); err != nil {
		return fmt.Errorf("approve return: %w", err)
	}
	return m.requests.UpdateReturnStatus(ctx, orderID, orders.StatusReturnApproved)
}

// CompleteRefund closes the return once the refund is settled.
func (m *Machine) CompleteRefund(ctx context.Context, orderID string) error {
	if err := m.orderStore.UpdateStatus(ctx, orderID, orders.StatusReturnApproved, orders.StatusRefundCompleted); err != nil {
		return fmt.Errorf("complete refund: %w", err)
	}
	return m.requests.UpdateReturnStatus(ctx, orderID, orders.StatusRefundCompleted)
}
