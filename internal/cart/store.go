package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopkart/orderflow/internal/aws"
)

// ErrCartConflict indicates the expected-version write lost to a
// concurrent writer; callers re-read and retry.
var ErrCartConflict = errors.New("cart version conflict")

// ErrLineNotFound indicates the (product, variant) key is not in the cart.
var ErrLineNotFound = errors.New("cart line not found")

// Store persists one cart document per cart_id. All mutations are
// read-modify-write guarded by an expected-version condition.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a cart Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get loads the cart. A missing item is an empty cart, not an error.
func (s *Store) Get(ctx context.Context, cartID string) (Snapshot, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return Snapshot{CartID: cartID}, nil
	}
	var snap Snapshot
	if err := attributevalue.UnmarshalMap(out.Item, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	return snap, nil
}

// AddOrIncrement merges the line into the cart by (product, variant) key.
// When a stock ceiling is known and the combined quantity would exceed it,
// the quantity clamps to the ceiling and clamped=true is returned as the
// non-fatal stock-limit signal.
func (s *Store) AddOrIncrement(ctx context.Context, cartID string, line CartLine, requestedQty int) (Snapshot, bool, error) {
	if requestedQty <= 0 {
		return Snapshot{}, false, fmt.Errorf("requested quantity must be positive, got %d", requestedQty)
	}

	snap, err := s.Get(ctx, cartID)
	if err != nil {
		return Snapshot{}, false, err
	}

	clamped := false
	if existing := snap.Find(line.Key()); existing != nil {
		newQty := existing.Quantity + requestedQty
		if existing.StockCeiling > 0 && newQty > existing.StockCeiling {
			newQty = existing.StockCeiling
			clamped = true
		}
		existing.Quantity = newQty
	} else {
		line.Quantity = requestedQty
		if line.StockCeiling > 0 && line.Quantity > line.StockCeiling {
			line.Quantity = line.StockCeiling
			clamped = true
		}
		snap.Items = append(snap.Items, line)
	}

	if err := s.save(ctx, snap); err != nil {
		return Snapshot{}, false, err
	}
	snap.Version++
	return snap, clamped, nil
}

// Decrement lowers the line's quantity, flooring at 1. Removal is an
// explicit Remove, never a decrement to zero.
func (s *Store) Decrement(ctx context.Context, cartID, key string, by int) (Snapshot, error) {
	if by <= 0 {
		return Snapshot{}, fmt.Errorf("decrement must be positive, got %d", by)
	}
	snap, err := s.Get(ctx, cartID)
	if err != nil {
		return Snapshot{}, err
	}
	line := snap.Find(key)
	if line == nil {
		return Snapshot{}, ErrLineNotFound
	}
	line.Quantity -= by
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	if err := s.save(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	snap.Version++
	return snap, nil
}

// Remove deletes the line from the cart.
func (s *Store) Remove(ctx context.Context, cartID, key string) (Snapshot, error) {
	snap, err := s.Get(ctx, cartID)
	if err != nil {
		return Snapshot{}, err
	}
	found := false
	for i := range snap.Items {
		if snap.Items[i].Key() == key {
			snap.Items = append(snap.Items[:i], snap.Items[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return Snapshot{}, ErrLineNotFound
	}
	if err := s.save(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	snap.Version++
	return snap, nil
}

// SetBilling stores the checkout form's billing details on the cart.
func (s *Store) SetBilling(ctx context.Context, cartID string, billing BillingDetails) error {
	snap, err := s.Get(ctx, cartID)
	if err != nil {
		return err
	}
	snap.Billing = billing
	return s.save(ctx, snap)
}

// Clear deletes the whole cart document. Used after a successful order
// placement and for an explicit cart reset.
func (s *Store) Clear(ctx context.Context, cartID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// save writes the snapshot back with version+1, conditional on the stored
// version still matching the one we read.
func (s *Store) save(ctx context.Context, snap Snapshot) error {
	readVersion := snap.Version
	snap.Version = readVersion + 1

	item, err := attributevalue.MarshalMap(snap)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if readVersion == 0 {
		input.ConditionExpression = awsString("attribute_not_exists(cart_id)")
	} else {
		input.ConditionExpression = awsString("version = :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", readVersion)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrCartConflict
		}
		return fmt.Errorf("put cart: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
