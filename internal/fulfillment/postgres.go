package fulfillment

import (
	"context"
	"fmt"

	"github.com/gitshopapp/dropship/internal/db"
)

// PostgresStore runs fulfillment transactions against db.FulfillmentStore.
type PostgresStore struct {
	store *db.FulfillmentStore
}

func NewPostgresStore(store *db.FulfillmentStore) (*PostgresStore, error) {
	if store == nil {
		return nil, fmt.Errorf("fulfillment store is required")
	}
	return &PostgresStore{store: store}, nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.store.InTx(ctx, func(tx *db.FulfillmentTx) error {
		return fn(tx)
	})
}
