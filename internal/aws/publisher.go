package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

var ErrQueueNotConfigured = errors.New("queue URL is not configured")

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	sqs      SQSAPI
	queueURL string
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      sqsClient,
		queueURL: queueURL,
	}
}

// Publish sends body with string message attributes and returns the SQS message id.
func (p *Publisher) Publish(ctx context.Context, body string, attributes map[string]string) (string, error) {
	if p == nil || p.sqs == nil || p.queueURL == "" {
		return "", ErrQueueNotConfigured
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.queueURL),
		MessageBody: sdkaws.String(body),
	}
	if len(attributes) > 0 {
		keys := make([]string, 0, len(attributes))
		for k := range attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(keys))
		for _, k := range keys {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(attributes[k]),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	out, err := p.sqs.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return sdkaws.ToString(out.MessageId), nil
}

// PublishJSON marshals v and publishes it.
func (p *Publisher) PublishJSON(ctx context.Context, v any, attributes map[string]string) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return p.Publish(ctx, string(body), attributes)
}
