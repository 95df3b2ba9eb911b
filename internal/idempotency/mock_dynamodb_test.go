package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memoryTable understands just the expressions DynamoStore sends.
type memoryTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMemoryTable() *memoryTable {
	return &memoryTable{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(attrs map[string]types.AttributeValue) (string, error) {
	attr, ok := attrs["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return attr.Value, nil
}

func (m *memoryTable) PutItem(_ context.Context, params *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(idempotency_key)" {
		if _, ok := m.items[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memoryTable) GetItem(_ context.Context, params *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.items[k]}, nil
}

func (m *memoryTable) UpdateItem(_ context.Context, params *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	if !ok {
		item = map[string]types.AttributeValue{"idempotency_key": &types.AttributeValueMemberS{Value: k}}
	}
	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ",") {
		name, placeholder, found := strings.Cut(strings.TrimSpace(assignment), " = ")
		if !found {
			return nil, errors.New("unsupported update expression")
		}
		if alias, ok := params.ExpressionAttributeNames[name]; ok {
			name = alias
		}
		item[name] = params.ExpressionAttributeValues[placeholder]
	}
	m.items[k] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *memoryTable) DeleteItem(_ context.Context, params *dyn.DeleteItemInput, _ ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if params.ConditionExpression != nil {
		want := params.ExpressionAttributeValues[":inprogress"].(*types.AttributeValueMemberS).Value
		status, _ := item["status"].(*types.AttributeValueMemberS)
		if status == nil || status.Value != want {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(m.items, k)
	return &dyn.DeleteItemOutput{}, nil
}
