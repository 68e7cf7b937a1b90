package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopkart/orderflow/internal/aws"
)

// ErrStatusMismatch indicates a conditional status transition lost to a
// concurrent writer or an unexpected current status.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the canonical orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	userIndex string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store. userIndex is the GSI keyed by
// user_id used for "my orders" listings.
func NewStore(client aws.DynamoDBAPI, tableName, userIndex string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		userIndex: userIndex,
		nowFunc:   time.Now,
	}
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (ConditionExpression attribute_not_exists(idempotency_key))
//   - the canonical order in the orders table (guarded on order_id)
//
// order.OrderID must be set by the caller. A duplicate idempotency key
// cancels the whole transaction; callers inspect the idempotency record to
// replay the stored response.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely idempotency key exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally moves the order from expected -> newStatus.
// Returns ErrStatusMismatch if the current status is not the expected one.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, newStatus Status) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// AnnotateFanoutFailure appends a fan-out note onto the order so the
// reconciler (and ops) can see which projection writes still need repair.
func (s *Store) AnnotateFanoutFailure(ctx context.Context, orderID, step, errText string) error {
	note := FanoutNote{Step: step, Error: errText, NotedAt: s.nowFunc()}
	noteAV, err := attributevalue.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal fanout note: %w", err)
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET fanout_notes = list_append(if_not_exists(fanout_notes, :empty), :note), updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":note":  &types.AttributeValueMemberL{Value: []types.AttributeValue{noteAV}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("annotate fanout failure: %w", err)
	}
	return nil
}

// ResolveFanoutNotes marks the notes for the given steps resolved after a
// successful repair. Read-modify-write is fine here: only the reconciler
// touches the notes list after placement.
func (s *Store) ResolveFanoutNotes(ctx context.Context, orderID string, steps []string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order not found: %s", orderID)
	}

	stepSet := map[string]bool{}
	for _, st := range steps {
		stepSet[st] = true
	}
	for i := range o.FanoutNotes {
		if stepSet[o.FanoutNotes[i].Step] {
			o.FanoutNotes[i].Resolved = true
		}
	}

	notesAV, err := attributevalue.Marshal(o.FanoutNotes)
	if err != nil {
		return fmt.Errorf("marshal fanout notes: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET fanout_notes = :notes, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":notes": notesAV,
			":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("resolve fanout notes: %w", err)
	}
	return nil
}

// SetShipping overwrites the shipping block on the order. Used both for a
// successful courier handoff and for recording a failed attempt.
func (s *Store) SetShipping(ctx context.Context, orderID string, info ShippingInfo) error {
	shipAV, err := attributevalue.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal shipping info: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET shipping = :sh, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sh": shipAV,
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set shipping: %w", err)
	}
	return nil
}

// SetCancelled marks the order cancelled and records the reason. The
// customer-facing cancellation is authoritative, so this is unconditional
// on courier-side success.
func (s *Store) SetCancelled(ctx context.Context, orderID, reason string) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :cancelled, cancellation_reason = :r, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cancelled": &types.AttributeValueMemberS{Value: string(StatusCancelled)},
			":r":         &types.AttributeValueMemberS{Value: reason},
			":ua":        &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set cancelled: %w", err)
	}
	return nil
}

// SetLineItems replaces the line items array, used when a return marks a
// single line. Caller is expected to have read the current order first.
func (s *Store) SetLineItems(ctx context.Context, orderID string, lines []LineItem) error {
	linesAV, err := attributevalue.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET line_items = :li, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":li": linesAV,
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set line items: %w", err)
	}
	return nil
}

// ListByUser returns the user's orders via the user_id GSI.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.userIndex,
		KeyConditionExpression: awsString("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	var result []Order
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &result); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	return result, nil
}

func awsString(s string) *string { return &s }
