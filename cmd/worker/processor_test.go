package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/awstest"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/orders"
)

type processorFixture struct {
	dynamo     *awstest.Dynamo
	sqs        *awstest.SQS
	cloudwatch *awstest.CloudWatch
	processor  *Processor
}

func newProcessorFixture(courierURL string) *processorFixture {
	dynamo := awstest.NewDynamo().
		Table("orders", "order_id").
		Table("wallets", "user_id").
		Table("seller_orders", "seller_id", "order_id").
		Table("seller_aggregates", "seller_id").
		Table("cancel_requests", "order_id").
		Table("return_requests", "order_id").
		Table("idempotency", "idempotency_key").
		Table("fanout_marks", "mark_id")
	sqsFake := &awstest.SQS{}
	cw := &awstest.CloudWatch{}

	clients := &aws.AWSClients{DynamoDB: dynamo, SQS: sqsFake, CloudWatch: cw}
	cfg := ProcessorConfig{
		OrdersTable:           "orders",
		UserOrdersIndex:       "user-index",
		WalletsTable:          "wallets",
		SellerOrdersTable:     "seller_orders",
		SellerAggregatesTable: "seller_aggregates",
		CancelRequestsTable:   "cancel_requests",
		ReturnRequestsTable:   "return_requests",
		IdempotencyTable:      "idempotency",
		FanoutMarksTable:      "fanout_marks",
		QueueURL:              "https://queue.test/reconcile",
		TTLWindow:             48 * time.Hour,
		CourierBaseURL:        courierURL,
	}
	return &processorFixture{
		dynamo:     dynamo,
		sqs:        sqsFake,
		cloudwatch: cw,
		processor:  NewProcessor(clients, cfg),
	}
}

func sqsEvent(t *testing.T, task fanout.Task) events.SQSEvent {
	t.Helper()
	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return events.SQSEvent{Records: []events.SQSMessage{{Body: string(body)}}}
}

func TestHandle_FanoutRepair(t *testing.T) {
	f := newProcessorFixture("http://courier.invalid")
	f.dynamo.Seed("orders", orders.Order{
		OrderID: "o1", UserID: "u1",
		Status:        orders.StatusPending,
		ItemsTotal:    50000,
		PayableAmount: 50000,
		SellerIDs:     []string{"s1"},
		LineItems: []orders.LineItem{
			{ProductID: "p1", Name: "Kettle", SellerID: "s1", UnitPrice: 50000, Quantity: 1},
		},
		FanoutNotes: []orders.FanoutNote{{Step: fanout.StepMirrors, Error: "put refused"}},
	})

	err := f.processor.Handle(context.Background(), sqsEvent(t, fanout.Task{
		Type: fanout.TaskFanoutRepair, OrderID: "o1", Steps: []string{fanout.StepMirrors},
	}))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	if f.dynamo.Item("seller_orders", "s1", "o1") == nil {
		t.Fatalf("mirror not repaired")
	}
	if f.cloudwatch.Counts["FanoutRepaired"] != 1 {
		t.Fatalf("repair not counted: %+v", f.cloudwatch.Counts)
	}
}

func TestHandle_FanoutRepair_UnknownOrderRetries(t *testing.T) {
	f := newProcessorFixture("http://courier.invalid")

	err := f.processor.Handle(context.Background(), sqsEvent(t, fanout.Task{
		Type: fanout.TaskFanoutRepair, OrderID: "ghost", Steps: []string{fanout.StepMirrors},
	}))
	if err == nil {
		t.Fatalf("missing order must error so the message is retried")
	}
}

func TestHandle_CourierReconcile(t *testing.T) {
	courier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer courier.Close()

	f := newProcessorFixture(courier.URL)
	f.dynamo.Seed("orders", orders.Order{
		OrderID: "o1", UserID: "u1",
		Status:   orders.StatusCancelled,
		Shipping: orders.ShippingInfo{Attempted: true, CourierOrderID: "crr-1"},
	})
	f.dynamo.Seed("cancel_requests", orders.CancelRequest{
		OrderID: "o1", UserID: "u1",
		Outcome:        orders.CancelCourierFailed,
		NeedsReconcile: true,
	})

	err := f.processor.Handle(context.Background(), sqsEvent(t, fanout.Task{
		Type: fanout.TaskCourierReconcile, OrderID: "o1",
	}))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if f.cloudwatch.Counts["CourierReconciled"] != 1 {
		t.Fatalf("reconcile not counted: %+v", f.cloudwatch.Counts)
	}
}

func TestHandle_CourierStillDownRetries(t *testing.T) {
	courier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer courier.Close()

	f := newProcessorFixture(courier.URL)
	f.dynamo.Seed("orders", orders.Order{
		OrderID: "o1", UserID: "u1",
		Status:   orders.StatusCancelled,
		Shipping: orders.ShippingInfo{Attempted: true, CourierOrderID: "crr-1"},
	})
	f.dynamo.Seed("cancel_requests", orders.CancelRequest{
		OrderID: "o1", UserID: "u1",
		Outcome:        orders.CancelCourierFailed,
		NeedsReconcile: true,
	})

	err := f.processor.Handle(context.Background(), sqsEvent(t, fanout.Task{
		Type: fanout.TaskCourierReconcile, OrderID: "o1",
	}))
	if err == nil {
		t.Fatalf("courier failure must error so the message is retried")
	}
}

func TestHandle_UnknownTypeDropped(t *testing.T) {
	f := newProcessorFixture("http://courier.invalid")

	err := f.processor.Handle(context.Background(), sqsEvent(t, fanout.Task{
		Type: "mystery", OrderID: "o1",
	}))
	if err != nil {
		t.Fatalf("unknown types must be swallowed, got %v", err)
	}
}

func TestHandle_InvalidBodyErrors(t *testing.T) {
	f := newProcessorFixture("http://courier.invalid")

	ev := events.SQSEvent{Records: []events.SQSMessage{{Body: "not json"}}}
	if err := f.processor.Handle(context.Background(), ev); err == nil {
		t.Fatalf("expected error for an unparseable body")
	}
}
