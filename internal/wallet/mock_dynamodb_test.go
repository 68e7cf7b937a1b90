package wallet

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// walletMock is a small in-memory stand-in for the wallets table. It
// understands only the update expressions the Ledger issues.
type walletMock struct {
	mu       sync.Mutex
	accounts map[string]map[string]types.AttributeValue
}

func newWalletMock() *walletMock {
	return &walletMock{accounts: map[string]map[string]types.AttributeValue{}}
}

func (m *walletMock) seed(userID string, coins, pending int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[userID] = map[string]types.AttributeValue{
		"user_id":         &types.AttributeValueMemberS{Value: userID},
		"coin_balance":    &types.AttributeValueMemberN{Value: strconv.FormatInt(coins, 10)},
		"pending_balance": &types.AttributeValueMemberN{Value: strconv.FormatInt(pending, 10)},
	}
}

func (m *walletMock) balance(userID, attr string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.accounts[userID]
	if !ok {
		return 0
	}
	n, ok := item[attr].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v
}

func (m *walletMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Key["user_id"].(*types.AttributeValueMemberS).Value
	item, ok := m.accounts[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *walletMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Key["user_id"].(*types.AttributeValueMemberS).Value
	item, ok := m.accounts[k]
	if !ok {
		item = map[string]types.AttributeValue{
			"user_id":         &types.AttributeValueMemberS{Value: k},
			"coin_balance":    &types.AttributeValueMemberN{Value: "0"},
			"pending_balance": &types.AttributeValueMemberN{Value: "0"},
		}
	}

	num := func(attr string) int64 {
		n, ok := item[attr].(*types.AttributeValueMemberN)
		if !ok {
			return 0
		}
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	val := func(name string) int64 {
		n := params.ExpressionAttributeValues[name].(*types.AttributeValueMemberN)
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	set := func(attr string, v int64) {
		item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
	}

	expr := *params.UpdateExpression
	switch {
	case strings.HasPrefix(expr, "SET coin_balance = coin_balance - :amt"):
		// debit, guarded by coin_balance >= :amt
		if params.ConditionExpression == nil || *params.ConditionExpression != "coin_balance >= :amt" {
			return nil, errors.New("unexpected debit condition")
		}
		amt := val(":amt")
		if num("coin_balance") < amt {
			return nil, &types.ConditionalCheckFailedException{}
		}
		set("coin_balance", num("coin_balance")-amt)

	case strings.HasPrefix(expr, "SET coin_balance = coin_balance + :p"):
		// convert, guarded by pending_balance = :p
		if num("pending_balance") != val(":p") {
			return nil, &types.ConditionalCheckFailedException{}
		}
		set("coin_balance", num("coin_balance")+val(":p"))
		set("pending_balance", 0)

	case strings.HasPrefix(expr, "SET #a = if_not_exists(#a, :zero) + :amt"):
		attr := params.ExpressionAttributeNames["#a"]
		set(attr, num(attr)+val(":amt"))

	default:
		return nil, errors.New("unsupported update expression: " + expr)
	}

	m.accounts[k] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *walletMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return nil, errors.New("not used")
}

func (m *walletMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return nil, errors.New("not used")
}

func (m *walletMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not used")
}

func (m *walletMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not used")
}
