package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/cancel"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/shipping"
	"github.com/shopkart/orderflow/internal/wallet"
)

// ProcessorConfig carries table names and external endpoints from the
// environment into the worker graph.
type ProcessorConfig struct {
	OrdersTable           string
	UserOrdersIndex       string
	WalletsTable          string
	SellerOrdersTable     string
	SellerAggregatesTable string
	CancelRequestsTable   string
	ReturnRequestsTable   string
	IdempotencyTable      string
	FanoutMarksTable      string
	QueueURL              string
	TTLWindow             time.Duration

	CourierBaseURL   string
	CourierAuthToken string
}

// Processor drains the reconcile queue: repairing failed fan-out writes
// and retrying courier cancellations that never confirmed.
type Processor struct {
	writer    *fanout.Writer
	canceller *cancel.Machine
	metrics   *aws.Metrics
}

// NewProcessor wires the worker's component graph from raw AWS clients.
func NewProcessor(clients *aws.AWSClients, cfg ProcessorConfig) *Processor {
	metrics := aws.NewMetrics(clients.CloudWatch, "Orderflow")
	publisher := aws.NewPublisher(clients.SQS, cfg.QueueURL)

	ledger := wallet.NewLedger(clients.DynamoDB, cfg.WalletsTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.UserOrdersIndex)
	mirrors := orders.NewMirrorStore(clients.DynamoDB, cfg.SellerOrdersTable, cfg.SellerAggregatesTable)
	requests := orders.NewRequestStore(clients.DynamoDB, cfg.CancelRequestsTable, cfg.ReturnRequestsTable)
	marks := fanout.NewMarkStore(clients.DynamoDB, cfg.FanoutMarksTable)
	courier := shipping.NewAdapter(cfg.CourierBaseURL, cfg.CourierAuthToken)

	return &Processor{
		writer:    fanout.NewWriter(ledger, orderStore, mirrors, marks, publisher, metrics, cfg.IdempotencyTable, cfg.TTLWindow),
		canceller: cancel.NewMachine(orderStore, mirrors, requests, courier, publisher, metrics),
		metrics:   metrics,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var task fanout.Task
	if err := json.Unmarshal([]byte(rec.Body), &task); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received type=%s order=%s corr=%s", task.Type, task.OrderID, task.RequestID)

	switch task.Type {
	case fanout.TaskFanoutRepair:
		if err := p.writer.Repair(ctx, task.OrderID, task.Steps); err != nil {
			return fmt.Errorf("fanout repair order=%s: %w", task.OrderID, err)
		}
		p.metrics.Count(ctx, "FanoutRepaired", nil)
	case fanout.TaskCourierReconcile:
		if err := p.canceller.Reconcile(ctx, task.OrderID); err != nil {
			return fmt.Errorf("courier reconcile order=%s: %w", task.OrderID, err)
		}
		p.metrics.Count(ctx, "CourierReconciled", nil)
	default:
		// unknown types are swallowed, not retried
		log.Printf("[worker] unknown task type=%s, dropping", task.Type)
	}

	log.Printf("[worker] completed type=%s order=%s", task.Type, task.OrderID)
	return nil
}
