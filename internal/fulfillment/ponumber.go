package fulfillment

import (
	"context"
	"fmt"
	"strconv"
)

// NextPOBlock reserves n consecutive PO numbers inside tx. Numbers start
// after the highest one issued so far and never below floor. The read
// holds the allocator lock until tx ends, so concurrent runs cannot be
// handed the same block; the unique constraint on po_number is the backstop.
func NextPOBlock(ctx context.Context, tx Tx, n int, floor int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	highest, found, err := tx.MaxPONumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("read highest PO number: %w", err)
	}

	start := floor
	if found && highest >= start {
		start = highest + 1
	}
	block := make([]string, n)
	for i := range block {
		block[i] = strconv.FormatInt(start+int64(i), 10)
	}
	return block, nil
}

// poBlock hands out a reserved block in order.
type poBlock struct {
	numbers []string
	next    int
}

func (b *poBlock) take() (string, error) {
	if b.next >= len(b.numbers) {
		return "", fmt.Errorf("PO number block exhausted after %d numbers", len(b.numbers))
	}
	number := b.numbers[b.next]
	b.next++
	return number, nil
}
