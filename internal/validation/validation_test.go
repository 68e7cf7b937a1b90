package validation

import "testing"

func validReturnRequest() ReturnOrderRequest {
	return ReturnOrderRequest{
		UserID:  "u1",
		LineKey: "p1",
		Reason:  "damaged",
		Method:  "WALLET",
	}
}

func TestReturnOrderRequest_WalletNeedsNoBankFields(t *testing.T) {
	v := New()

	if err := v.Struct(validReturnRequest()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestReturnOrderRequest_BankTransferRequiresBankFields(t *testing.T) {
	v := New()

	req := validReturnRequest()
	req.Method = "BANK_TRANSFER"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for missing bank fields, got nil")
	}

	req.AccountName = "A Kumar"
	req.AccountNumber = "12345678901"
	req.IFSC = "HDFC0ABC123"
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid bank transfer, got error: %v", err)
	}
}

func TestReturnOrderRequest_InvalidIFSC(t *testing.T) {
	v := New()

	req := validReturnRequest()
	req.Method = "BANK_TRANSFER"
	req.AccountName = "A Kumar"
	req.AccountNumber = "12345678901"
	req.IFSC = "hdfc-bad"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for malformed IFSC, got nil")
	}
}

func TestReturnOrderRequest_UnknownMethod(t *testing.T) {
	v := New()

	req := validReturnRequest()
	req.Method = "CHEQUE"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for unknown method, got nil")
	}
}

func TestBillingRequest(t *testing.T) {
	v := New()

	req := BillingRequest{
		Name: "A Kumar", Phone: "9876543210",
		Line1: "221B Hill Road", City: "Mumbai", State: "MH", Pincode: "400050",
	}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	req.Pincode = "4000"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for short pincode, got nil")
	}

	req.Pincode = "400050"
	req.Phone = "not-a-phone"
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for bad phone, got nil")
	}
}

func TestAddToCartRequest_MissingFields(t *testing.T) {
	v := New()

	req := AddToCartRequest{Quantity: 1}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}
