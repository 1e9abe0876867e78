package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	pfirestore "github.com/Abhranil-01/dsport-backend-api/internal/platform/firestore"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

// Ledger implements repositories.Ledger on Cloud Firestore. Serializable transactions provide the
// conditional stock update: a concurrent writer to any document read by the transaction causes
// Firestore to abort and retry the whole function.
type Ledger struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	txOpts   []pfirestore.TxOption
}

var (
	_ repositories.Ledger      = (*Ledger)(nil)
	_ repositories.OrderReader = (*Ledger)(nil)
)

// NewLedger constructs a Firestore backed ledger.
func NewLedger(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*Ledger, error) {
	if provider == nil {
		return nil, errors.New("firestore ledger: provider is required")
	}
	return &Ledger{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		txOpts:   opts,
	}, nil
}

// RunInTx runs fn in a Firestore transaction. Writes issued through the LedgerTx are staged and
// applied after fn returns, because Firestore rejects reads that follow writes in a transaction.
func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repositories.LedgerTx) error) error {
	if fn == nil {
		return errors.New("firestore ledger: transaction function is nil")
	}
	client, err := l.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("ledger.tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(ctx context.Context, ftx *firestore.Transaction) error {
		tx := newLedgerTx(client, ftx)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.flush()
	}, l.txOpts...)
}

// Close releases the Firestore client.
func (l *Ledger) Close(ctx context.Context) error {
	return l.provider.Close(ctx)
}

// ListOrdersByUser returns the user's most recent orders.
func (l *Ledger) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := l.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", userID, err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}
