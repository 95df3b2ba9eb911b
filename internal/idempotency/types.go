// Package idempotency lets an HTTP request claim a key so replays return
// the stored response instead of running the operation again.
package idempotency

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

var ErrEmptyKey = errors.New("idempotency key is empty")

// Record is the stored state of one key.
type Record struct {
	Key            string    `json:"key" dynamodbav:"idempotency_key"`
	Status         Status    `json:"status" dynamodbav:"status"`
	ResponseStatus int       `json:"response_status,omitempty" dynamodbav:"response_status,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty" dynamodbav:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" dynamodbav:"updated_at"`
	ExpiresAt      int64     `json:"expires_at" dynamodbav:"expires_at"`
}

// Store is implemented by the cache and DynamoDB backends.
type Store interface {
	// Begin claims key. When the key was already claimed it returns the
	// existing record and false; the record is nil if it vanished meanwhile.
	Begin(ctx context.Context, key string) (*Record, bool, error)
	// Complete stores the response for a claimed key.
	Complete(ctx context.Context, key string, status int, body []byte) error
	// Release forgets a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}
