package money

import "testing"

func TestQuoteCoins_CapsAtTenPercent(t *testing.T) {
	// cart total 1000 rupees, balance 150 coins -> min(150, 100) = 100
	got := QuoteCoins(100000, 150)
	if got != 100 {
		t.Fatalf("expected 100 coins, got %d", got)
	}
}

func TestQuoteCoins_CapsAtBalance(t *testing.T) {
	got := QuoteCoins(100000, 40)
	if got != 40 {
		t.Fatalf("expected 40 coins, got %d", got)
	}
}

func TestQuoteCoins_ZeroInputs(t *testing.T) {
	if QuoteCoins(0, 100) != 0 {
		t.Fatal("zero total should quote zero coins")
	}
	if QuoteCoins(100000, 0) != 0 {
		t.Fatal("zero balance should quote zero coins")
	}
	if QuoteCoins(-500, -5) != 0 {
		t.Fatal("negative inputs should quote zero coins")
	}
}

func TestQuoteCoins_FloorsFractionalCap(t *testing.T) {
	// total 999.99 rupees -> 10% = 99.999 -> floor 99 coins
	got := QuoteCoins(99999, 1000)
	if got != 99 {
		t.Fatalf("expected 99 coins, got %d", got)
	}
}

func TestClampCoins(t *testing.T) {
	cases := []struct {
		requested, total, balance, want int64
	}{
		{50, 100000, 150, 50},   // under cap, honored
		{120, 100000, 150, 100}, // above 10% cap, clamped
		{200, 100000, 80, 80},   // above balance, clamped
		{-5, 100000, 150, 0},    // negative, zeroed
	}
	for _, c := range cases {
		if got := ClampCoins(c.requested, c.total, c.balance); got != c.want {
			t.Fatalf("ClampCoins(%d,%d,%d) = %d, want %d", c.requested, c.total, c.balance, got, c.want)
		}
	}
}

func TestCashbackCoins(t *testing.T) {
	// 1000 rupees -> floor(10.00) = 10 coins
	if got := CashbackCoins(100000); got != 10 {
		t.Fatalf("expected 10 cashback coins, got %d", got)
	}
	// 99 rupees -> floor(0.99) = 0 coins
	if got := CashbackCoins(9900); got != 0 {
		t.Fatalf("expected 0 cashback coins, got %d", got)
	}
}

func TestRefundShare_QuarterSplit(t *testing.T) {
	// 500 rupee line of a 2000 rupee order, payable 2000 -> refund 500
	got := RefundShare(200000, 50000, 200000)
	if got != 50000 {
		t.Fatalf("expected 50000 paise refund, got %d", got)
	}
}

func TestRefundShare_DiscountedPayable(t *testing.T) {
	// coins shaved payable to 1900 on a 2000 order; 500 line -> 475
	got := RefundShare(190000, 50000, 200000)
	if got != 47500 {
		t.Fatalf("expected 47500 paise refund, got %d", got)
	}
}

func TestProrateCoins(t *testing.T) {
	// 100 coins used, 500 of 2000 -> round(25) = 25
	if got := ProrateCoins(100, 50000, 200000); got != 25 {
		t.Fatalf("expected 25 coins, got %d", got)
	}
	// rounding: 100 coins, 1 of 3 -> round(33.33) = 33
	if got := ProrateCoins(100, 100, 300); got != 33 {
		t.Fatalf("expected 33 coins, got %d", got)
	}
}

func TestRefundCoins_RoundsToWholeCoins(t *testing.T) {
	if got := RefundCoins(50000); got != 500 {
		t.Fatalf("expected 500 coins, got %d", got)
	}
	if got := RefundCoins(50050); got != 501 {
		t.Fatalf("expected 501 coins, got %d", got)
	}
	if got := RefundCoins(-10); got != 0 {
		t.Fatalf("expected 0 coins for negative refund, got %d", got)
	}
}
