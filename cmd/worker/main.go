package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/shopkart/orderflow/internal/aws"
)

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := ProcessorConfig{
		OrdersTable:           os.Getenv("ORDERS_TABLE"),
		UserOrdersIndex:       os.Getenv("USER_ORDERS_INDEX"),
		WalletsTable:          os.Getenv("WALLETS_TABLE"),
		SellerOrdersTable:     os.Getenv("SELLER_ORDERS_TABLE"),
		SellerAggregatesTable: os.Getenv("SELLER_AGGREGATES_TABLE"),
		CancelRequestsTable:   os.Getenv("CANCEL_REQUESTS_TABLE"),
		ReturnRequestsTable:   os.Getenv("RETURN_REQUESTS_TABLE"),
		IdempotencyTable:      os.Getenv("IDEMPOTENCY_TABLE"),
		FanoutMarksTable:      os.Getenv("FANOUT_MARKS_TABLE"),
		QueueURL:              os.Getenv("TASKS_QUEUE_URL"),
		TTLWindow:             48 * time.Hour,

		CourierBaseURL:   os.Getenv("COURIER_BASE_URL"),
		CourierAuthToken: os.Getenv("COURIER_AUTH_TOKEN"),
	}

	p := NewProcessor(clients, cfg)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"type":"fanout_repair","order_id":"local-order-1","steps":["mirrors"]}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
