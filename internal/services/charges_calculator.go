package services

import (
	"context"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

// ChargesCalculator derives the per-user charges snapshot from the live cart.
type ChargesCalculator struct {
	policy domain.ChargesPolicy
	clock  func() time.Time
}

// NewChargesCalculator constructs a calculator. A nil clock uses time.Now.
func NewChargesCalculator(policy domain.ChargesPolicy, clock func() time.Time) *ChargesCalculator {
	if clock == nil {
		clock = time.Now
	}
	return &ChargesCalculator{policy: policy, clock: func() time.Time { return clock().UTC() }}
}

// Policy returns the active charges policy.
func (c *ChargesCalculator) Policy() domain.ChargesPolicy { return c.policy }

// Recalculate rebuilds the snapshot inside tx. An empty cart deletes the snapshot and returns nil.
func (c *ChargesCalculator) Recalculate(ctx context.Context, tx repositories.LedgerTx, userID string) (*domain.ChargesSnapshot, error) {
	items, err := tx.ListCartItems(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, "list cart for %s", userID)
	}
	if len(items) == 0 {
		if err := tx.DeleteCharges(ctx, userID); err != nil {
			return nil, mapRepositoryError(err, "delete charges for %s", userID)
		}
		return nil, nil
	}

	lines := make([]domain.PricedLine, 0, len(items))
	for _, item := range items {
		stock, err := tx.GetStock(ctx, item.SizeID)
		if err != nil {
			return nil, mapRepositoryError(err, "stock %s", item.SizeID)
		}
		lines = append(lines, domain.PricedLine{
			Quantity:   item.Quantity,
			UnitPrice:  stock.UnitPrice,
			OfferPrice: stock.OfferPrice,
		})
	}

	snapshot := c.policy.Compute(lines)
	snapshot.ID = userID
	snapshot.UserID = userID
	snapshot.UpdatedAt = c.clock()
	if err := tx.PutCharges(ctx, snapshot); err != nil {
		return nil, mapRepositoryError(err, "store charges for %s", userID)
	}
	return &snapshot, nil
}
