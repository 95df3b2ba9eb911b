package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PartStore struct {
	pool *pgxpool.Pool
}

func NewPartStore(pool *pgxpool.Pool) *PartStore {
	return &PartStore{pool: pool}
}

// GetMapping returns pgx.ErrNoRows when the sku has no mapping.
func (s *PartStore) GetMapping(ctx context.Context, sku string) (*PartMapping, error) {
	var mapping PartMapping
	query := `SELECT sku, part_number, part_type FROM part_mappings WHERE sku = $1`
	if err := s.pool.QueryRow(ctx, query, sku).Scan(&mapping.SKU, &mapping.PartNumber, &mapping.PartType); err != nil {
		return nil, err
	}
	return &mapping, nil
}

// GetDescription returns pgx.ErrNoRows when no override description exists.
func (s *PartStore) GetDescription(ctx context.Context, partNumber string) (string, error) {
	var description string
	query := `SELECT description FROM part_descriptions WHERE part_number = $1`
	if err := s.pool.QueryRow(ctx, query, partNumber).Scan(&description); err != nil {
		return "", err
	}
	return description, nil
}
