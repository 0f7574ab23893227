package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/sneakerstore/internal/aws"
)

var ErrAlreadyReminded = errors.New("cart already reminded")

// item is the carts table shape. The state is kept as a JSON document because
// decimal discount values have no native attribute mapping.
type item struct {
	CartID      string `dynamodbav:"cart_id"` // PK
	UserID      string `dynamodbav:"user_id,omitempty"`
	Email       string `dynamodbav:"email,omitempty"`
	State       string `dynamodbav:"state"`
	ItemCount   int    `dynamodbav:"item_count"`
	UpdatedUnix int64  `dynamodbav:"updated_unix"`
	RemindedAt  string `dynamodbav:"reminded_at,omitempty"`
	ExpiresAt   int64  `dynamodbav:"expires_at"` // TTL epoch seconds
}

// DynamoPersister stores carts in DynamoDB with a TTL.
type DynamoPersister struct {
	client    aws.DynamoDBAPI
	tableName string
	ttl       time.Duration
}

func NewDynamoPersister(client aws.DynamoDBAPI, tableName string, ttl time.Duration) *DynamoPersister {
	return &DynamoPersister{client: client, tableName: tableName, ttl: ttl}
}

func cartKey(cartID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"cart_id": &types.AttributeValueMemberS{Value: cartID}}
}

// Load returns (nil, nil) when the cart does not exist.
func (p *DynamoPersister) Load(ctx context.Context, cartID string) (*Record, error) {
	out, err := p.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &p.tableName,
		Key:       cartKey(cartID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return it.record()
}

func (p *DynamoPersister) Save(ctx context.Context, rec Record) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("encode cart state: %w", err)
	}
	it := item{
		CartID:      rec.CartID,
		UserID:      rec.UserID,
		Email:       rec.Email,
		State:       string(state),
		ItemCount:   len(rec.State.Items),
		UpdatedUnix: rec.UpdatedAt.Unix(),
		ExpiresAt:   rec.UpdatedAt.Add(p.ttl).Unix(),
	}
	if rec.RemindedAt != nil {
		it.RemindedAt = rec.RemindedAt.UTC().Format(time.RFC3339)
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if _, err := p.client.PutItem(ctx, &dyn.PutItemInput{TableName: &p.tableName, Item: av}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (p *DynamoPersister) Delete(ctx context.Context, cartID string) error {
	_, err := p.client.DeleteItem(ctx, &dyn.DeleteItemInput{TableName: &p.tableName, Key: cartKey(cartID)})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// ListIdle returns non-empty carts with a contact email, untouched since before and never reminded.
func (p *DynamoPersister) ListIdle(ctx context.Context, before time.Time) ([]Record, error) {
	input := &dyn.ScanInput{
		TableName:        &p.tableName,
		FilterExpression: awsString("updated_unix < :cutoff AND item_count > :zero AND attribute_exists(email) AND attribute_not_exists(reminded_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(before.Unix(), 10)},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
		},
	}

	var out []Record
	for {
		page, err := p.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan carts: %w", err)
		}
		for _, av := range page.Items {
			var it item
			if err := attributevalue.UnmarshalMap(av, &it); err != nil {
				return nil, fmt.Errorf("unmarshal cart: %w", err)
			}
			rec, err := it.record()
			if err != nil {
				return nil, err
			}
			out = append(out, *rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// MarkReminded stamps reminded_at once. A second call returns ErrAlreadyReminded.
func (p *DynamoPersister) MarkReminded(ctx context.Context, cartID string, at time.Time) error {
	_, err := p.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &p.tableName,
		Key:                 cartKey(cartID),
		UpdateExpression:    awsString("SET reminded_at = :r"),
		ConditionExpression: awsString("attribute_exists(cart_id) AND attribute_not_exists(reminded_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrAlreadyReminded
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (it item) record() (*Record, error) {
	rec := &Record{
		CartID:    it.CartID,
		UserID:    it.UserID,
		Email:     it.Email,
		UpdatedAt: time.Unix(it.UpdatedUnix, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(it.State), &rec.State); err != nil {
		return nil, fmt.Errorf("decode cart state: %w", err)
	}
	if rec.State.Items == nil {
		rec.State.Items = []Item{}
	}
	if it.RemindedAt != "" {
		if t, err := time.Parse(time.RFC3339, it.RemindedAt); err == nil {
			rec.RemindedAt = &t
		}
	}
	return rec, nil
}

func awsString(s string) *string { return &s }
