package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

// ReserveOutcome is the result of a reservation attempt.
type ReserveOutcome int

const (
	// Reserved means the quantity was deducted.
	Reserved ReserveOutcome = iota + 1
	// Insufficient means available stock was below the request and nothing changed.
	Insufficient
)

func (o ReserveOutcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case Insufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// StockEngine deducts and restores available stock. Correctness under concurrency rests entirely
// on the ledger's conditional update; the engine holds no locks.
type StockEngine struct {
	ledger repositories.Ledger
}

// NewStockEngine constructs a StockEngine over ledger.
func NewStockEngine(ledger repositories.Ledger) (*StockEngine, error) {
	if ledger == nil {
		return nil, errors.New("stock engine: ledger is required")
	}
	return &StockEngine{ledger: ledger}, nil
}

// Reserve deducts qty from key inside tx when enough stock is available.
func (e *StockEngine) Reserve(ctx context.Context, tx repositories.LedgerTx, key string, qty int) (ReserveOutcome, error) {
	key = strings.TrimSpace(key)
	if key == "" || qty <= 0 {
		return 0, fmt.Errorf("%w: stock key and positive quantity are required", ErrValidation)
	}
	ok, err := tx.ReserveStock(ctx, key, qty)
	if err != nil {
		return 0, mapRepositoryError(err, "reserve stock %s", key)
	}
	if !ok {
		return Insufficient, nil
	}
	return Reserved, nil
}

// ReserveNow runs Reserve in its own transaction.
func (e *StockEngine) ReserveNow(ctx context.Context, key string, qty int) (ReserveOutcome, error) {
	var outcome ReserveOutcome
	err := e.ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		var err error
		outcome, err = e.Reserve(ctx, tx, key, qty)
		return err
	})
	if err != nil {
		return 0, mapRepositoryError(err, "reserve stock %s", key)
	}
	return outcome, nil
}

// Release restores qty to key inside tx.
func (e *StockEngine) Release(ctx context.Context, tx repositories.LedgerTx, key string, qty int) error {
	key = strings.TrimSpace(key)
	if key == "" || qty <= 0 {
		return fmt.Errorf("%w: stock key and positive quantity are required", ErrValidation)
	}
	if err := tx.ReleaseStock(ctx, key, qty); err != nil {
		return mapRepositoryError(err, "release stock %s", key)
	}
	return nil
}
