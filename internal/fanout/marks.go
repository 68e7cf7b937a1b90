package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/shopkart/orderflow/internal/aws"
)

// MarkStore guards the non-idempotent fan-out steps (aggregate increments,
// cashback credits) with one conditional put per order per step. A repair
// re-run that finds the mark already taken skips the step instead of
// applying it twice.
type MarkStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewMarkStore creates a MarkStore over the fanout marks table.
func NewMarkStore(client aws.DynamoDBAPI, tableName string) *MarkStore {
	return &MarkStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Acquire claims the mark. Returns (false, nil) when the mark is already
// held, meaning the guarded step has already been applied.
func (m *MarkStore) Acquire(ctx context.Context, markID string) (bool, error) {
	input := &dyn.PutItemInput{
		TableName: &m.tableName,
		Item: map[string]types.AttributeValue{
			"mark_id":    &types.AttributeValueMemberS{Value: markID},
			"created_at": &types.AttributeValueMemberS{Value: m.nowFunc().Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_not_exists(mark_id)"),
	}
	if _, err := m.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return false, nil
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("acquire mark %s: %w", markID, err)
	}
	return true, nil
}

// Release drops the mark so a failed guarded step can be retried. Best
// effort: a leaked mark only means the reconciler skips a step that the
// annotation still flags for manual review.
func (m *MarkStore) Release(ctx context.Context, markID string) error {
	_, err := m.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &m.tableName,
		Key: map[string]types.AttributeValue{
			"mark_id": &types.AttributeValueMemberS{Value: markID},
		},
	})
	if err != nil {
		return fmt.Errorf("release mark %s: %w", markID, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
