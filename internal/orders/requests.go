package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/shopkart/orderflow/internal/aws"
)

// ErrDuplicateRequest indicates an active cancel/return request already
// exists for the order. One active request per order per type.
var ErrDuplicateRequest = errors.New("request already exists for order")

// CancelOutcome is the closed set of cancellation results.
type CancelOutcome string

const (
	CancelCompleted        CancelOutcome = "COMPLETED"
	CancelPendingReconcile CancelOutcome = "PENDING_RECONCILE"
	CancelCourierFailed    CancelOutcome = "COURIER_FAILED"
)

// CancelRequest is the append-only audit record of a cancellation.
type CancelRequest struct {
	OrderID         string        `dynamodbav:"order_id"` // PK
	UserID          string        `dynamodbav:"user_id"`
	Reason          string        `dynamodbav:"reason"`
	Outcome         CancelOutcome `dynamodbav:"outcome"`
	ResultingStatus Status        `dynamodbav:"resulting_status"`
	NeedsReconcile  bool          `dynamodbav:"needs_reconcile"`
	CourierResponse string        `dynamodbav:"courier_response,omitempty"` // raw body, for reconciliation
	RequestedAt     time.Time     `dynamodbav:"requested_at"`
	UpdatedAt       time.Time     `dynamodbav:"updated_at"`
}

// RefundMethod selects how a return is settled.
type RefundMethod string

const (
	RefundWallet       RefundMethod = "WALLET"
	RefundBankTransfer RefundMethod = "BANK_TRANSFER"
)

// BankDetails carries the out-of-band settlement target for bank refunds.
type BankDetails struct {
	AccountName   string `dynamodbav:"account_name" json:"account_name"`
	AccountNumber string `dynamodbav:"account_number" json:"account_number"`
	IFSC          string `dynamodbav:"ifsc" json:"ifsc"`
}

// ReturnRequest is the append-only audit record of a line-item return.
type ReturnRequest struct {
	OrderID         string       `dynamodbav:"order_id"` // PK
	UserID          string       `dynamodbav:"user_id"`
	LineKey         string       `dynamodbav:"line_key"`
	Reason          string       `dynamodbav:"reason"`
	Method          RefundMethod `dynamodbav:"method"`
	RefundAmount    int64        `dynamodbav:"refund_amount"` // minor units
	CoinsToRefund   int64        `dynamodbav:"coins_to_refund"`
	WalletCredited  bool         `dynamodbav:"wallet_credited"`
	Bank            *BankDetails `dynamodbav:"bank,omitempty"`
	ResultingStatus Status       `dynamodbav:"resulting_status"`
	RequestedAt     time.Time    `dynamodbav:"requested_at"`
	UpdatedAt       time.Time    `dynamodbav:"updated_at"`
}

// RequestStore persists cancel and return requests, enforcing the
// one-active-request-per-order rule with conditional puts.
type RequestStore struct {
	client      aws.DynamoDBAPI
	cancelTable string
	returnTable string
	nowFunc     func() time.Time
}

// NewRequestStore creates a RequestStore over both request tables.
func NewRequestStore(client aws.DynamoDBAPI, cancelTable, returnTable string) *RequestStore {
	return &RequestStore{
		client:      client,
		cancelTable: cancelTable,
		returnTable: returnTable,
		nowFunc:     time.Now,
	}
}

// CreateCancel records a cancel request. Returns ErrDuplicateRequest if one
// already exists for the order.
func (r *RequestStore) CreateCancel(ctx context.Context, req CancelRequest) error {
	now := r.nowFunc()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	req.UpdatedAt = now
	return r.conditionalPut(ctx, r.cancelTable, req)
}

// CreateReturn records a return request with the same duplicate guard.
func (r *RequestStore) CreateReturn(ctx context.Context, req ReturnRequest) error {
	now := r.nowFunc()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	req.UpdatedAt = now
	return r.conditionalPut(ctx, r.returnTable, req)
}

func (r *RequestStore) conditionalPut(ctx context.Context, table string, rec interface{}) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &table,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrDuplicateRequest
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("put request: %w", err)
	}
	return nil
}

// GetCancel fetches the cancel request for an order. (nil, nil) if absent.
func (r *RequestStore) GetCancel(ctx context.Context, orderID string) (*CancelRequest, error) {
	out, err := r.getByOrder(ctx, r.cancelTable, orderID)
	if err != nil || out == nil {
		return nil, err
	}
	var req CancelRequest
	if err := attributevalue.UnmarshalMap(out, &req); err != nil {
		return nil, fmt.Errorf("unmarshal cancel request: %w", err)
	}
	return &req, nil
}

// GetReturn fetches the return request for an order. (nil, nil) if absent.
func (r *RequestStore) GetReturn(ctx context.Context, orderID string) (*ReturnRequest, error) {
	out, err := r.getByOrder(ctx, r.returnTable, orderID)
	if err != nil || out == nil {
		return nil, err
	}
	var req ReturnRequest
	if err := attributevalue.UnmarshalMap(out, &req); err != nil {
		return nil, fmt.Errorf("unmarshal return request: %w", err)
	}
	return &req, nil
}

func (r *RequestStore) getByOrder(ctx context.Context, table, orderID string) (map[string]types.AttributeValue, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &table,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// UpdateCancelOutcome rewrites the outcome fields after a reconcile pass.
func (r *RequestStore) UpdateCancelOutcome(ctx context.Context, orderID string, outcome CancelOutcome, needsReconcile bool, courierResponse string) error {
	input := &dyn.UpdateItemInput{
		TableName: &r.cancelTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET outcome = :o, needs_reconcile = :nr, courier_response = :cr, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o":  &types.AttributeValueMemberS{Value: string(outcome)},
			":nr": &types.AttributeValueMemberBOOL{Value: needsReconcile},
			":cr": &types.AttributeValueMemberS{Value: courierResponse},
			":ua": &types.AttributeValueMemberS{Value: r.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := r.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update cancel outcome: %w", err)
	}
	return nil
}

// SetReturnWalletCredited records that the instant wallet refund landed,
// so reconciliation can tell a settled request from a pending one.
func (r *RequestStore) SetReturnWalletCredited(ctx context.Context, orderID string) error {
	input := &dyn.UpdateItemInput{
		TableName: &r.returnTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET wallet_credited = :wc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":wc": &types.AttributeValueMemberBOOL{Value: true},
			":ua": &types.AttributeValueMemberS{Value: r.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := r.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set wallet credited: %w", err)
	}
	return nil
}

// UpdateReturnStatus advances the return request's resulting status.
func (r *RequestStore) UpdateReturnStatus(ctx context.Context, orderID string, status Status) error {
	input := &dyn.UpdateItemInput{
		TableName: &r.returnTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET resulting_status = :rs, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rs": &types.AttributeValueMemberS{Value: string(status)},
			":ua": &types.AttributeValueMemberS{Value: r.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := r.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update return status: %w", err)
	}
	return nil
}
