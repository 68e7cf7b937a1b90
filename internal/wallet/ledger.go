// Package wallet owns the coin ledger. One coin is one currency unit;
// coins act as a discount instrument at checkout and a refund instrument
// on returns. Nothing outside this package writes wallet balances.
package wallet

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
	"github.com/shopkart/orderflow/internal/money"
)

// ErrInsufficientFunds rejects a debit that would underflow the balance.
// The balance is left untouched; there is no clamping.
var ErrInsufficientFunds = errors.New("insufficient coin balance")

// Account is the wallet document, one per user.
type Account struct {
	UserID         string    `dynamodbav:"user_id"` // PK
	CoinBalance    int64     `dynamodbav:"coin_balance"`
	PendingBalance int64     `dynamodbav:"pending_balance"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
}

// Ledger reads and mutates wallet accounts.
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewLedger creates a Ledger over the wallets table.
func NewLedger(client aws.DynamoDBAPI, tableName string) *Ledger {
	return &Ledger{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Quote returns the coins auto-applied against a total: capped at 10% of
// the total and at the balance. Callers may spend less, never more.
func (l *Ledger) Quote(totalMinor, balance int64) int64 {
	return money.QuoteCoins(totalMinor, balance)
}

// Balance fetches the account. A missing account reads as zero balances.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return Account{}, fmt.Errorf("get wallet: %w", err)
	}
	if len(out.Item) == 0 {
		return Account{UserID: userID}, nil
	}
	var acct Account
	if err := attributevalue.UnmarshalMap(out.Item, &acct); err != nil {
		return Account{}, fmt.Errorf("unmarshal wallet: %w", err)
	}
	return acct, nil
}

// Debit subtracts amount coins in a single conditional update guarded by
// coin_balance >= amount. Two concurrent debits cannot both pass the guard
// on the same funds; the loser gets ErrInsufficientFunds.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    awsString("SET coin_balance = coin_balance - :amt, updated_at = :ua"),
		ConditionExpression: awsString("coin_balance >= :amt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", amount)},
			":ua":  &types.AttributeValueMemberS{Value: l.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := l.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("debit wallet: %w", err)
	}
	return nil
}

// Credit adds amount coins unconditionally, bootstrapping a missing
// account. Used for cashback and wallet-path refunds.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return l.increment(ctx, userID, "coin_balance", amount)
}

// CreditPending accrues coins into the pending bucket; they become
// spendable only through Convert.
func (l *Ledger) CreditPending(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("pending credit must be positive, got %d", amount)
	}
	return l.increment(ctx, userID, "pending_balance", amount)
}

// Convert moves the entire pending bucket into the spendable balance.
// The update is conditional on the pending amount we read, so a concurrent
// convert cannot apply the same coins twice.
func (l *Ledger) Convert(ctx context.Context, userID string) (int64, error) {
	acct, err := l.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acct.PendingBalance <= 0 {
		return 0, nil
	}

	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    awsString("SET coin_balance = coin_balance + :p, pending_balance = :zero, updated_at = :ua"),
		ConditionExpression: awsString("pending_balance = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", acct.PendingBalance)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":ua":   &types.AttributeValueMemberS{Value: l.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := l.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return 0, fmt.Errorf("pending balance changed mid-convert, retry")
		}
		return 0, fmt.Errorf("convert wallet: %w", err)
	}
	return acct.PendingBalance, nil
}

func (l *Ledger) increment(ctx context.Context, userID, attr string, amount int64) error {
	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:         awsString("SET #a = if_not_exists(#a, :zero) + :amt, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":amt":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", amount)},
			":ua":   &types.AttributeValueMemberS{Value: l.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := l.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("credit %s: %w", attr, err)
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var cc *types.ConditionalCheckFailedException
	if errors.As(err, &cc) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
