// Package testkit holds in-memory fakes shared by package tests.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is an in-memory DynamoDB covering the expression subset the stores use:
// SET/REMOVE updates, AND-joined conditions built from attribute_exists,
// attribute_not_exists and the comparison operators, equality key conditions on
// indexes, and filtered scans. It stores items per table: table -> pk -> item.
type Dynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	keyNames []string
	keys     map[string]string

	// Errs forces the named operation (e.g. "TransactWriteItems") to fail.
	Errs  map[string]error
	Calls map[string]int
}

// NewDynamo returns an empty fake. Tables registered with WithKey use that partition key;
// other items are keyed by the first of idempotency_key, cart_id, order_id present.
func NewDynamo() *Dynamo {
	return &Dynamo{
		tables:   map[string]map[string]map[string]types.AttributeValue{},
		keyNames: []string{"idempotency_key", "cart_id", "order_id"},
		keys:     map[string]string{},
		Errs:     map[string]error{},
		Calls:    map[string]int{},
	}
}

// WithKey sets the partition key attribute of table.
func (m *Dynamo) WithKey(table, attr string) *Dynamo {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[table] = attr
	return m
}

// Item returns a copy of the stored item, or nil.
func (m *Dynamo) Item(table, pk string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.table(table)[pk]
	if !ok {
		return nil
	}
	return clone(item)
}

// Len returns the number of items in table.
func (m *Dynamo) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table(table))
}

// Seed stores item directly, bypassing conditions.
func (m *Dynamo) Seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, _ := m.itemKey(table, item)
	m.table(table)[pk] = clone(item)
}

func (m *Dynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func (m *Dynamo) enter(op string) error {
	m.Calls[op]++
	if err := m.Errs[op]; err != nil {
		return err
	}
	return nil
}

func (m *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutItem"); err != nil {
		return nil, err
	}
	pk, err := m.itemKey(*params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	ok, err := evalCondition(params.ConditionExpression, tbl[pk], params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	tbl[pk] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetItem"); err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (m *Dynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteItem"); err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	ok, err := evalCondition(params.ConditionExpression, tbl[pk], params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	delete(tbl, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateItem"); err != nil {
		return nil, err
	}
	pk, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*params.TableName)
	current := tbl[pk]
	ok, err := evalCondition(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	next, err := applyUpdate(current, params.Key, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	tbl[pk] = next
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = clone(next)
	}
	return out, nil
}

// Query supports a single equality key condition, on the table or on any index.
func (m *Dynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Query"); err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("testkit: missing key condition")
	}
	items := []map[string]types.AttributeValue{}
	for _, item := range m.sorted(*params.TableName) {
		ok, err := evalCondition(params.KeyConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if params.FilterExpression != nil {
			ok, err = evalCondition(params.FilterExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		items = append(items, clone(item))
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (m *Dynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Scan"); err != nil {
		return nil, err
	}
	items := []map[string]types.AttributeValue{}
	for _, item := range m.sorted(*params.TableName) {
		ok, err := evalCondition(params.FilterExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, clone(item))
		}
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

// TransactWriteItems checks every condition before applying any write.
func (m *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		var (
			ok  bool
			err error
		)
		switch {
		case it.Put != nil:
			pk, kerr := m.itemKey(*it.Put.TableName, it.Put.Item)
			if kerr != nil {
				return nil, kerr
			}
			ok, err = evalCondition(it.Put.ConditionExpression, m.table(*it.Put.TableName)[pk], it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues)
		case it.Update != nil:
			pk, kerr := keyValue(it.Update.Key)
			if kerr != nil {
				return nil, kerr
			}
			ok, err = evalCondition(it.Update.ConditionExpression, m.table(*it.Update.TableName)[pk], it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
		case it.ConditionCheck != nil:
			pk, kerr := keyValue(it.ConditionCheck.Key)
			if kerr != nil {
				return nil, kerr
			}
			ok, err = evalCondition(it.ConditionCheck.ConditionExpression, m.table(*it.ConditionCheck.TableName)[pk], it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues)
		default:
			return nil, errors.New("testkit: unsupported transact item")
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			pk, _ := m.itemKey(*it.Put.TableName, it.Put.Item)
			m.table(*it.Put.TableName)[pk] = clone(it.Put.Item)
		case it.Update != nil:
			pk, _ := keyValue(it.Update.Key)
			tbl := m.table(*it.Update.TableName)
			next, err := applyUpdate(tbl[pk], it.Update.Key, it.Update.UpdateExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			tbl[pk] = next
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *Dynamo) itemKey(table string, item map[string]types.AttributeValue) (string, error) {
	names := m.keyNames
	if k, ok := m.keys[table]; ok {
		names = []string{k}
	}
	for _, k := range names {
		if v, ok := item[k].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("testkit: no primary key in item")
}

func (m *Dynamo) sorted(table string) []map[string]types.AttributeValue {
	tbl := m.table(table)
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, tbl[k])
	}
	return out
}

func keyValue(key map[string]types.AttributeValue) (string, error) {
	if len(key) != 1 {
		return "", errors.New("testkit: only single-attribute keys are supported")
	}
	for _, v := range key {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			return s.Value, nil
		}
	}
	return "", errors.New("testkit: key must be a string")
}

func applyUpdate(current, key map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	next := clone(current)
	if next == nil {
		next = clone(key)
	}
	if expr == nil {
		return next, nil
	}
	setPart, removePart := *expr, ""
	if i := strings.Index(setPart, " REMOVE "); i >= 0 {
		setPart, removePart = setPart[:i], setPart[i+len(" REMOVE "):]
	} else if strings.HasPrefix(setPart, "REMOVE ") {
		setPart, removePart = "", strings.TrimPrefix(setPart, "REMOVE ")
	}
	setPart = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(setPart), "SET "))
	if setPart != "" {
		for _, assign := range strings.Split(setPart, ",") {
			lhs, rhs, ok := strings.Cut(assign, "=")
			if !ok {
				return nil, fmt.Errorf("testkit: bad assignment %q", assign)
			}
			name := resolveName(strings.TrimSpace(lhs), names)
			val, ok := values[strings.TrimSpace(rhs)]
			if !ok {
				return nil, fmt.Errorf("testkit: unbound value %q", rhs)
			}
			next[name] = val
		}
	}
	for _, attr := range strings.Split(removePart, ",") {
		if attr = strings.TrimSpace(attr); attr != "" {
			delete(next, resolveName(attr, names))
		}
	}
	return next, nil
}

func evalCondition(expr *string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, term := range strings.Split(*expr, " AND ") {
		term = strings.TrimSpace(term)
		ok, err := evalTerm(term, item, names, values)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalTerm(term string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if arg, ok := fnArg(term, "attribute_not_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return !exists, nil
	}
	if arg, ok := fnArg(term, "attribute_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return exists, nil
	}
	for _, op := range []string{"<>", "<=", ">=", "=", "<", ">"} {
		lhs, rhs, ok := strings.Cut(term, " "+op+" ")
		if !ok {
			continue
		}
		want, bound := values[strings.TrimSpace(rhs)]
		if !bound {
			return false, fmt.Errorf("testkit: unbound value %q", rhs)
		}
		got, exists := item[resolveName(strings.TrimSpace(lhs), names)]
		if !exists {
			return op == "<>", nil
		}
		c, comparable := compare(got, want)
		if !comparable {
			return op == "<>", nil
		}
		switch op {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		}
	}
	return false, fmt.Errorf("testkit: unsupported condition %q", term)
}

func fnArg(term, fn string) (string, bool) {
	if !strings.HasPrefix(term, fn+"(") || !strings.HasSuffix(term, ")") {
		return "", false
	}
	return strings.TrimSpace(term[len(fn)+1 : len(term)-1]), true
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
