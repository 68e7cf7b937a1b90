package cart

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// cartMock is an in-memory carts table implementing only the conditional
// puts the Store issues.
type cartMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue

	// afterGet, when set, runs after a read completes. Lets tests slip a
	// concurrent write between the store's read and its conditional put.
	afterGet func()
}

func newCartMock() *cartMock {
	return &cartMock{table: map[string]map[string]types.AttributeValue{}}
}

func (m *cartMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	k := params.Key["cart_id"].(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	m.mu.Unlock()
	if m.afterGet != nil {
		m.afterGet()
	}
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *cartMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Item["cart_id"].(*types.AttributeValueMemberS).Value
	existing, exists := m.table[k]

	if params.ConditionExpression != nil {
		switch *params.ConditionExpression {
		case "attribute_not_exists(cart_id)":
			if exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case "version = :v":
			want := params.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
			have := existing["version"].(*types.AttributeValueMemberN).Value
			if have != want {
				return nil, &types.ConditionalCheckFailedException{}
			}
		default:
			return nil, errors.New("unsupported condition: " + *params.ConditionExpression)
		}
	}

	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *cartMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, params.Key["cart_id"].(*types.AttributeValueMemberS).Value)
	return &dyn.DeleteItemOutput{}, nil
}

// bumpVersion simulates a concurrent writer racing the caller. A copy is
// stored so a snapshot already handed out by GetItem stays stale.
func (m *cartMock) bumpVersion(cartID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.table[cartID]
	fresh := make(map[string]types.AttributeValue, len(old))
	for k, v := range old {
		fresh[k] = v
	}
	n := old["version"].(*types.AttributeValueMemberN)
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	fresh["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v+1, 10)}
	m.table[cartID] = fresh
}

func (m *cartMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("not used")
}

func (m *cartMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not used")
}

func (m *cartMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not used")
}
