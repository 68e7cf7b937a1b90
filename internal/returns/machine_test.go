package returns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/awstest"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/wallet"
)

type returnsFixture struct {
	dynamo   *awstest.Dynamo
	orders   *orders.Store
	requests *orders.RequestStore
	ledger   *wallet.Ledger
	machine  *Machine
}

func newReturnsFixture() *returnsFixture {
	dynamo := awstest.NewDynamo().
		Table("orders", "order_id").
		Table("cancel_requests", "order_id").
		Table("return_requests", "order_id").
		Table("wallets", "user_id")

	orderStore := orders.NewStore(dynamo, "orders", "user-index")
	requests := orders.NewRequestStore(dynamo, "cancel_requests", "return_requests")
	ledger := wallet.NewLedger(dynamo, "wallets")
	metrics := aws.NewMetrics(&awstest.CloudWatch{}, "Test")

	return &returnsFixture{
		dynamo:   dynamo,
		orders:   orderStore,
		requests: requests,
		ledger:   ledger,
		machine:  NewMachine(orderStore, requests, ledger, metrics),
	}
}

// delivered order: two lines totalling 2000.00, 100 coins spent, payable
// 1900.00 after the coin discount
func seedDelivered(f *returnsFixture) {
	f.dynamo.Seed("orders", orders.Order{
		OrderID: "order-1",
		UserID:  "u1",
		Status:  orders.StatusDelivered,
		LineItems: []orders.LineItem{
			{ProductID: "p1", Name: "Lamp", SKU: "L1", SellerID: "s1", UnitPrice: 50000, Quantity: 1},
			{ProductID: "p2", Name: "Desk", SKU: "D1", SellerID: "s1", UnitPrice: 150000, Quantity: 1},
		},
		ItemsTotal:    200000,
		PayableAmount: 190000,
		CoinsUsed:     100,
		CreatedAt:     time.Now().UTC(),
	})
}

func TestRequest_WalletRefundIsInstant(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	f.dynamo.Seed("wallets", wallet.Account{UserID: "u1", CoinBalance: 5})
	ctx := context.Background()

	req, err := f.machine.Request(ctx, "order-1", "u1", "p1", "wrong colour", orders.RefundWallet, nil)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}

	// the 500.00 line is a quarter of the order: refund 475.00, coins 25
	if req.RefundAmount != 47500 {
		t.Fatalf("expected refund 47500, got %d", req.RefundAmount)
	}
	if req.CoinsToRefund != 25 {
		t.Fatalf("expected 25 coins prorated, got %d", req.CoinsToRefund)
	}
	if !req.WalletCredited {
		t.Fatalf("expected instant wallet credit")
	}

	// 475.00 refund lands as 475 coins on top of the 5 held
	acct, _ := f.ledger.Balance(ctx, "u1")
	if acct.CoinBalance != 480 {
		t.Fatalf("expected balance 480, got %d", acct.CoinBalance)
	}

	// the credit is recorded on the stored request, not just the response
	stored, _ := f.requests.GetReturn(ctx, "order-1")
	if !stored.WalletCredited {
		t.Fatalf("stored request must carry the credit flag")
	}

	order, _ := f.orders.Get(ctx, "order-1")
	if order.Status != orders.StatusReturnRequested {
		t.Fatalf("expected RETURN_REQUESTED, got %s", order.Status)
	}
	var line *orders.LineItem
	for i := range order.LineItems {
		if order.LineItems[i].ProductID == "p1" {
			line = &order.LineItems[i]
		}
	}
	if line == nil || line.Status != orders.StatusReturnRequested {
		t.Fatalf("expected the returned line marked, got %+v", line)
	}
}

func TestRequest_BankTransferNeedsDetails(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)

	_, err := f.machine.Request(context.Background(), "order-1", "u1", "p1", "late", orders.RefundBankTransfer, nil)
	if !errors.Is(err, ErrBankDetailsRequired) {
		t.Fatalf("expected ErrBankDetailsRequired, got %v", err)
	}
}

func TestRequest_BankTransferDoesNotTouchWallet(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	ctx := context.Background()

	bank := &orders.BankDetails{AccountName: "A Kumar", AccountNumber: "12345678", IFSC: "HDFC0ABC123"}
	req, err := f.machine.Request(ctx, "order-1", "u1", "p1", "late", orders.RefundBankTransfer, bank)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if req.WalletCredited {
		t.Fatalf("bank transfer must not credit the wallet")
	}
	if f.dynamo.Len("wallets") != 0 {
		t.Fatalf("wallet must be untouched")
	}
	stored, _ := f.requests.GetReturn(ctx, "order-1")
	if stored.Bank == nil || stored.Bank.IFSC != "HDFC0ABC123" {
		t.Fatalf("bank details not persisted: %+v", stored.Bank)
	}
}

func TestRequest_OnlyDeliveredOrders(t *testing.T) {
	f := newReturnsFixture()
	f.dynamo.Seed("orders", orders.Order{
		OrderID:   "order-1",
		UserID:    "u1",
		Status:    orders.StatusShipped,
		LineItems: []orders.LineItem{{ProductID: "p1", UnitPrice: 50000, Quantity: 1}},
	})

	_, err := f.machine.Request(context.Background(), "order-1", "u1", "p1", "early", orders.RefundWallet, nil)
	if !errors.Is(err, ErrNotDelivered) {
		t.Fatalf("expected ErrNotDelivered, got %v", err)
	}
}

func TestRequest_UnknownLine(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)

	_, err := f.machine.Request(context.Background(), "order-1", "u1", "ghost", "n/a", orders.RefundWallet, nil)
	if !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestRequest_DuplicateRejected(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	ctx := context.Background()

	if _, err := f.machine.Request(ctx, "order-1", "u1", "p1", "first", orders.RefundWallet, nil); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := f.machine.Request(ctx, "order-1", "u1", "p2", "second", orders.RefundWallet, nil)
	if !errors.Is(err, ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
}

func TestApproveAndCompleteRefund(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	ctx := context.Background()

	if _, err := f.machine.Request(ctx, "order-1", "u1", "p1", "wrong colour", orders.RefundWallet, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// refund before approval violates the chain
	if err := f.machine.CompleteRefund(ctx, "order-1"); !errors.Is(err, orders.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	if err := f.machine.Approve(ctx, "order-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	order, _ := f.orders.Get(ctx, "order-1")
	if order.Status != orders.StatusReturnApproved {
		t.Fatalf("expected RETURN_APPROVED, got %s", order.Status)
	}

	if err := f.machine.CompleteRefund(ctx, "order-1"); err != nil {
		t.Fatalf("CompleteRefund: %v", err)
	}
	order, _ = f.orders.Get(ctx, "order-1")
	if order.Status != orders.StatusRefundCompleted {
		t.Fatalf("expected REFUND_COMPLETED, got %s", order.Status)
	}
	stored, _ := f.requests.GetReturn(ctx, "order-1")
	if stored.ResultingStatus != orders.StatusRefundCompleted {
		t.Fatalf("request status not advanced: %s", stored.ResultingStatus)
	}
}

func TestWatch_DeliversChangesAndStopsOnTerminal(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := f.machine.Watch(ctx, "order-1", 10*time.Millisecond)

	first := <-updates
	if first.Status != orders.StatusDelivered {
		t.Fatalf("expected DELIVERED first, got %s", first.Status)
	}

	if err := f.orders.SetCancelled(ctx, "order-1", "test"); err != nil {
		t.Fatalf("SetCancelled: %v", err)
	}

	second := <-updates
	if second.Status != orders.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", second.Status)
	}

	// terminal status closes the channel
	if _, open := <-updates; open {
		t.Fatalf("expected channel closed after terminal status")
	}
}

func TestWatch_TeardownOnCancel(t *testing.T) {
	f := newReturnsFixture()
	seedDelivered(f)
	ctx, cancel := context.WithCancel(context.Background())

	updates := f.machine.Watch(ctx, "order-1", 10*time.Millisecond)
	<-updates

	cancel()
	select {
	case _, open := <-updates:
		if open {
			t.Fatalf("expected closed channel after ctx cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop after ctx cancel")
	}
}
