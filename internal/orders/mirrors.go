package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopkart/orderflow/internal/aws"
)

// MirrorStore handles the per-seller order projections and the seller
// sales aggregates. Both live in their own tables; neither is the source
// of truth, so every write here is safe to re-run.
type MirrorStore struct {
	client         aws.DynamoDBAPI
	mirrorTable    string
	aggregateTable string
	nowFunc        func() time.Time
}

// NewMirrorStore creates a MirrorStore over the mirror and aggregate tables.
func NewMirrorStore(client aws.DynamoDBAPI, mirrorTable, aggregateTable string) *MirrorStore {
	return &MirrorStore{
		client:         client,
		mirrorTable:    mirrorTable,
		aggregateTable: aggregateTable,
		nowFunc:        time.Now,
	}
}

// PutMirror writes a seller projection. Keyed by (seller_id, order_id), so
// a reconciler re-run simply overwrites the same item: idempotent.
func (m *MirrorStore) PutMirror(ctx context.Context, mirror SellerOrderMirror) error {
	now := m.nowFunc()
	if mirror.CreatedAt.IsZero() {
		mirror.CreatedAt = now
	}
	mirror.UpdatedAt = now

	item, err := attributevalue.MarshalMap(mirror)
	if err != nil {
		return fmt.Errorf("marshal mirror: %w", err)
	}
	if _, err := m.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &m.mirrorTable,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put mirror: %w", err)
	}
	return nil
}

// GetMirror fetches one seller projection. Returns (nil, nil) if missing.
func (m *MirrorStore) GetMirror(ctx context.Context, sellerID, orderID string) (*SellerOrderMirror, error) {
	out, err := m.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &m.mirrorTable,
		Key: map[string]types.AttributeValue{
			"seller_id": &types.AttributeValueMemberS{Value: sellerID},
			"order_id":  &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get mirror: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var mirror SellerOrderMirror
	if err := attributevalue.UnmarshalMap(out.Item, &mirror); err != nil {
		return nil, fmt.Errorf("unmarshal mirror: %w", err)
	}
	return &mirror, nil
}

// SetMirrorStatus pushes a status change (cancellation, return) onto one
// seller's projection of the order.
func (m *MirrorStore) SetMirrorStatus(ctx context.Context, sellerID, orderID string, status Status) error {
	input := &dyn.UpdateItemInput{
		TableName: &m.mirrorTable,
		Key: map[string]types.AttributeValue{
			"seller_id": &types.AttributeValueMemberS{Value: sellerID},
			"order_id":  &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :st, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(status)},
			":ua": &types.AttributeValueMemberS{Value: m.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := m.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set mirror status: %w", err)
	}
	return nil
}

// ListBySeller returns all of a seller's order projections.
func (m *MirrorStore) ListBySeller(ctx context.Context, sellerID string) ([]SellerOrderMirror, error) {
	out, err := m.client.Query(ctx, &dyn.QueryInput{
		TableName:              &m.mirrorTable,
		KeyConditionExpression: awsString("seller_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sellerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query mirrors: %w", err)
	}
	var mirrors []SellerOrderMirror
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &mirrors); err != nil {
		return nil, fmt.Errorf("unmarshal mirrors: %w", err)
	}
	return mirrors, nil
}

// ApplySale upserts the seller aggregate: bumps total_sales and appends an
// order summary. NOT idempotent on its own — callers must hold a fan-out
// mark before re-running it.
func (m *MirrorStore) ApplySale(ctx context.Context, sellerID string, summary OrderSummary) error {
	summaryAV, err := attributevalue.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName: &m.aggregateTable,
		Key: map[string]types.AttributeValue{
			"seller_id": &types.AttributeValueMemberS{Value: sellerID},
		},
		UpdateExpression: awsString("SET total_sales = if_not_exists(total_sales, :zero) + :amt, order_summaries = list_append(if_not_exists(order_summaries, :empty), :sum), updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":amt":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", summary.Subtotal)},
			":sum":   &types.AttributeValueMemberL{Value: []types.AttributeValue{summaryAV}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ua":    &types.AttributeValueMemberS{Value: m.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := m.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("apply sale: %w", err)
	}
	return nil
}

// GetAggregate fetches a seller's rollup. Returns (nil, nil) if missing.
func (m *MirrorStore) GetAggregate(ctx context.Context, sellerID string) (*SellerAggregate, error) {
	out, err := m.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &m.aggregateTable,
		Key: map[string]types.AttributeValue{
			"seller_id": &types.AttributeValueMemberS{Value: sellerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var agg SellerAggregate
	if err := attributevalue.UnmarshalMap(out.Item, &agg); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate: %w", err)
	}
	return &agg, nil
}
