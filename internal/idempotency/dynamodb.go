package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/gitshopapp/dropship/internal/aws"
)

// DynamoStore keeps records in a DynamoDB table keyed by idempotency_key,
// with expires_at as the table's TTL attribute.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

func NewDynamoStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) Begin(ctx context.Context, key string) (*Record, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	now := s.nowFunc().UTC()
	rec := Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           sdkaws.String(s.tableName),
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			existing, getErr := s.get(ctx, key)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("put item: %w", err)
	}

	return &rec, true, nil
}

func (s *DynamoStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: sdkaws.String(s.tableName),
		Key:       keyAttr(key),
		UpdateExpression: sdkaws.String(
			"SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua, expires_at = :ea",
		),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: string(StatusDone)},
			":rb":   &types.AttributeValueMemberS{Value: string(body)},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(status)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":ea":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

// Release deletes the record only while it is still in progress, so a
// completed response is never dropped.
func (s *DynamoStore) Release(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           sdkaws.String(s.tableName),
		Key:                 keyAttr(key),
		ConditionExpression: sdkaws.String("#s = :inprogress"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inprogress": &types.AttributeValueMemberS{Value: string(StatusInProgress)},
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *DynamoStore) get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      sdkaws.String(s.tableName),
		Key:            keyAttr(key),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
