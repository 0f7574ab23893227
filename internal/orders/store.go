package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
)

const (
	userIndex          = "user_id-index"
	paymentIntentIndex = "payment_intent-index"
)

var (
	// ErrStatusMismatch means the conditional status update lost: the order is not in the expected status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	ErrNotFound       = errors.New("order not found")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client           aws.DynamoDBAPI
	tableName        string
	idempotencyTable string
	nowFunc          func() time.Time
}

// NewStore creates a new orders Store. idempotencyTable holds the one-order-per-session gate.
func NewStore(client aws.DynamoDBAPI, tableName, idempotencyTable string) *Store {
	return &Store{
		client:           client,
		tableName:        tableName,
		idempotencyTable: idempotencyTable,
		nowFunc:          time.Now,
	}
}

func sessionKey(sessionID string) string { return "checkout_session#" + sessionID }

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// CreateOnce atomically creates:
//   - the session gate in the idempotency table (ConditionExpression attribute_not_exists(idempotency_key))
//   - the order record in the orders table
//
// When the gate already exists the order created by the first call is returned with
// created=false and nothing is written. The gate never expires.
func (s *Store) CreateOnce(ctx context.Context, order Order) (*Order, bool, error) {
	if order.SessionID == "" || order.OrderID == "" {
		return nil, false, errors.New("order id and session id are required")
	}
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	gateMap, err := attributevalue.MarshalMap(idempotency.Record{
		IdempotencyKey: sessionKey(order.SessionID),
		Status:         idempotency.StatusDone,
		Ref:            order.OrderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal session gate: %w", err)
	}
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, false, fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.idempotencyTable,
					Item:                gateMap,
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
	})
	if err == nil {
		return &order, true, nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, false, fmt.Errorf("transact write: %w", err)
	}
	existing, getErr := s.GetBySession(ctx, order.SessionID)
	if getErr != nil {
		return nil, false, fmt.Errorf("transaction canceled and existing order lookup failed: %w", errors.Join(err, getErr))
	}
	return existing, false, nil
}

// GetBySession follows the session gate to its order.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.idempotencyTable,
		Key:            map[string]types.AttributeValue{"idempotency_key": &types.AttributeValueMemberS{Value: sessionKey(sessionID)}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get session gate: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var gate idempotency.Record
	if err := attributevalue.UnmarshalMap(out.Item, &gate); err != nil {
		return nil, fmt.Errorf("unmarshal session gate: %w", err)
	}
	return s.Get(ctx, gate.Ref)
}

// Get fetches an order by order_id. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition conditionally moves the order from expected -> next, setting the extra
// attributes in fields in the same write, and returns the updated order.
// Returns ErrStatusMismatch if the condition failed. expected == next stamps fields
// while guarding the current status.
func (s *Store) Transition(ctx context.Context, orderID, expected, next string, fields map[string]any) (*Order, error) {
	names := map[string]string{"#s": "status"}
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: next},
		":expected": &types.AttributeValueMemberS{Value: expected},
	}
	ua, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal updated_at: %w", err)
	}
	values[":ua"] = ua
	updateExpr := "SET #s = :new, updated_at = :ua"

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		names[fmt.Sprintf("#f%d", i)] = k
		values[fmt.Sprintf(":f%d", i)] = av
		updateExpr += fmt.Sprintf(", #f%d = :f%d", i, i)
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("attribute_exists(order_id) AND #s = :expected"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		// detect conditional check failing
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// SetRefund records the refund outcome without touching the status.
func (s *Store) SetRefund(ctx context.Context, orderID string, refund Refund) error {
	av, err := attributevalue.Marshal(refund)
	if err != nil {
		return fmt.Errorf("marshal refund: %w", err)
	}
	ua, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET #r = :r, updated_at = :ua"),
		ConditionExpression:       awsString("attribute_exists(order_id)"),
		ExpressionAttributeNames:  map[string]string{"#r": "refund"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":r": av, ":ua": ua},
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrNotFound
		}
		return fmt.Errorf("update refund: %w", err)
	}
	return nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.query(ctx, userIndex, "user_id", userID)
}

// GetByPaymentIntent finds the order paid by paymentIntentID.
func (s *Store) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error) {
	found, err := s.query(ctx, paymentIntentIndex, "payment_intent_id", paymentIntentID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (s *Store) query(ctx context.Context, index, attr, value string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(index),
		KeyConditionExpression: awsString(attr + " = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	}
	var out []Order
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", index, err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

// List scans every order, optionally only those in status. Admin use only.
func (s *Store) List(ctx context.Context, status string) ([]Order, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if status != "" {
		input.FilterExpression = awsString("#s = :s")
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":s": &types.AttributeValueMemberS{Value: status}}
	}
	var out []Order
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
