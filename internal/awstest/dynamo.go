// Package awstest provides in-memory stand-ins for the AWS clients used
// in unit tests. The DynamoDB fake understands only the expression shapes
// this codebase issues; anything else errors loudly so a new expression
// gets a fake to match.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is a multi-table in-memory DynamoDB fake.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]map[string]types.AttributeValue

	// FailPut and FailUpdate inject write failures per table.
	FailPut    map[string]error
	FailUpdate map[string]error
	// FailTransact fails the next TransactWriteItems call.
	FailTransact error
}

// NewDynamo returns an empty fake with no tables registered.
func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:       map[string][]string{},
		tables:     map[string]map[string]map[string]types.AttributeValue{},
		FailPut:    map[string]error{},
		FailUpdate: map[string]error{},
	}
}

// Table registers a table and its key attributes. Chainable.
func (f *Dynamo) Table(name string, keyAttrs ...string) *Dynamo {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = keyAttrs
	f.tables[name] = map[string]map[string]types.AttributeValue{}
	return f
}

// Seed marshals v into the table, bypassing all conditions.
func (f *Dynamo) Seed(table string, v interface{}) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		panic(fmt.Sprintf("awstest: seed marshal: %v", err))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table][f.itemKey(table, item)] = item
}

// Item fetches a raw stored item by its key attribute values, nil if absent.
func (f *Dynamo) Item(table string, keyVals ...string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table][strings.Join(keyVals, "\x00")]
}

// Len reports how many items a table holds.
func (f *Dynamo) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *Dynamo) itemKey(table string, item map[string]types.AttributeValue) string {
	attrs, ok := f.keys[table]
	if !ok {
		panic("awstest: unregistered table " + table)
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		s, ok := item[a].(*types.AttributeValueMemberS)
		if !ok {
			panic(fmt.Sprintf("awstest: table %s item missing string key %s", table, a))
		}
		parts = append(parts, s.Value)
	}
	return strings.Join(parts, "\x00")
}

func (f *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	item, ok := f.tables[table][f.itemKey(table, params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	if err := f.FailPut[table]; err != nil {
		return nil, err
	}
	key := f.itemKey(table, params.Item)
	existing := f.tables[table][key]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.tables[table][key] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Dynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	delete(f.tables[table], f.itemKey(table, params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (f *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName
	if err := f.FailUpdate[table]; err != nil {
		return nil, err
	}
	key := f.itemKey(table, params.Key)
	existing := f.tables[table][key]

	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	// UpdateItem upserts: start from the key attributes when absent
	item := copyItem(existing)
	if item == nil {
		item = copyItem(params.Key)
	}
	if err := applySet(*params.UpdateExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	f.tables[table][key] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *Dynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := *params.TableName

	expr := *params.KeyConditionExpression
	parts := strings.SplitN(expr, " = ", 2)
	if len(parts) != 2 {
		return nil, errors.New("awstest: unsupported key condition " + expr)
	}
	attr := resolveName(strings.TrimSpace(parts[0]), params.ExpressionAttributeNames)
	want, ok := params.ExpressionAttributeValues[strings.TrimSpace(parts[1])].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("awstest: key condition value must be a string")
	}

	var items []map[string]types.AttributeValue
	for _, item := range f.tables[table] {
		if s, ok := item[attr].(*types.AttributeValueMemberS); ok && s.Value == want.Value {
			items = append(items, copyItem(item))
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func (f *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTransact != nil {
		err := f.FailTransact
		f.FailTransact = nil
		return nil, err
	}

	// all conditions first, then all writes
	for _, ti := range params.TransactItems {
		p := ti.Put
		if p == nil {
			return nil, errors.New("awstest: only Put transact items supported")
		}
		table := *p.TableName
		existing := f.tables[table][f.itemKey(table, p.Item)]
		if p.ConditionExpression != nil {
			ok, err := evalCondition(*p.ConditionExpression, existing, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, ti := range params.TransactItems {
		p := ti.Put
		table := *p.TableName
		f.tables[table][f.itemKey(table, p.Item)] = copyItem(p.Item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// --- expression evaluation ---

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		return names[tok]
	}
	return tok
}

func evalCondition(expr string, existing map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "attribute_not_exists(") && strings.HasSuffix(expr, ")") {
		attr := resolveName(expr[len("attribute_not_exists("):len(expr)-1], names)
		if existing == nil {
			return true, nil
		}
		_, has := existing[attr]
		return !has, nil
	}
	if parts := strings.SplitN(expr, " >= ", 2); len(parts) == 2 {
		if existing == nil {
			return false, nil
		}
		have, err := numAttr(existing, resolveName(strings.TrimSpace(parts[0]), names))
		if err != nil {
			return false, err
		}
		want, err := numValue(values, strings.TrimSpace(parts[1]))
		if err != nil {
			return false, err
		}
		return have >= want, nil
	}
	if parts := strings.SplitN(expr, " = ", 2); len(parts) == 2 {
		if existing == nil {
			return false, nil
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		want := values[strings.TrimSpace(parts[1])]
		return attrEqual(existing[attr], want), nil
	}
	return false, errors.New("awstest: unsupported condition " + expr)
}

func applySet(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return errors.New("awstest: unsupported update " + expr)
	}
	for _, assign := range splitTopLevel(expr[4:]) {
		parts := strings.SplitN(assign, " = ", 2)
		if len(parts) != 2 {
			return errors.New("awstest: bad assignment " + assign)
		}
		target := resolveName(strings.TrimSpace(parts[0]), names)
		v, err := evalRHS(strings.TrimSpace(parts[1]), item, names, values)
		if err != nil {
			return err
		}
		item[target] = v
	}
	return nil
}

func evalRHS(rhs string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	// list_append(if_not_exists(attr, :empty), :val)
	if strings.HasPrefix(rhs, "list_append(") {
		inner := rhs[len("list_append(") : len(rhs)-1]
		args := splitTopLevel(inner)
		if len(args) != 2 {
			return nil, errors.New("awstest: bad list_append " + rhs)
		}
		base, err := evalRHS(strings.TrimSpace(args[0]), item, names, values)
		if err != nil {
			return nil, err
		}
		tail, ok := values[strings.TrimSpace(args[1])].(*types.AttributeValueMemberL)
		if !ok {
			return nil, errors.New("awstest: list_append tail must be a list")
		}
		baseL, ok := base.(*types.AttributeValueMemberL)
		if !ok {
			return nil, errors.New("awstest: list_append base must be a list")
		}
		merged := append(append([]types.AttributeValue{}, baseL.Value...), tail.Value...)
		return &types.AttributeValueMemberL{Value: merged}, nil
	}

	// arithmetic: "<operand> + :v" or "<operand> - :v"
	for _, op := range []string{" + ", " - "} {
		if parts := strings.SplitN(rhs, op, 2); len(parts) == 2 && balanced(parts[0]) {
			left, err := evalNumOperand(strings.TrimSpace(parts[0]), item, names, values)
			if err != nil {
				return nil, err
			}
			right, err := numValue(values, strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, err
			}
			if op == " - " {
				right = -right
			}
			return &types.AttributeValueMemberN{Value: strconv.FormatInt(left+right, 10)}, nil
		}
	}

	// if_not_exists(attr, :default)
	if strings.HasPrefix(rhs, "if_not_exists(") {
		inner := rhs[len("if_not_exists(") : len(rhs)-1]
		args := splitTopLevel(inner)
		if len(args) != 2 {
			return nil, errors.New("awstest: bad if_not_exists " + rhs)
		}
		attr := resolveName(strings.TrimSpace(args[0]), names)
		if v, ok := item[attr]; ok {
			return v, nil
		}
		return values[strings.TrimSpace(args[1])], nil
	}

	// plain value ref
	if strings.HasPrefix(rhs, ":") {
		v, ok := values[rhs]
		if !ok {
			return nil, errors.New("awstest: missing value " + rhs)
		}
		return v, nil
	}

	// plain attribute ref
	attr := resolveName(rhs, names)
	if v, ok := item[attr]; ok {
		return v, nil
	}
	return nil, errors.New("awstest: missing attribute " + attr)
}

func evalNumOperand(tok string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (int64, error) {
	v, err := evalRHS(tok, item, names, values)
	if err != nil {
		return 0, err
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("awstest: operand is not numeric: " + tok)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func numAttr(item map[string]types.AttributeValue, attr string) (int64, error) {
	n, ok := item[attr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("awstest: attribute is not numeric: " + attr)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func numValue(values map[string]types.AttributeValue, name string) (int64, error) {
	n, ok := values[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("awstest: value is not numeric: " + name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	}
	return false
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth == 0
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	cp := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		cp[k] = v
	}
	return cp
}
