package repositories

import (
	"context"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// Ledger is the transactional store holding carts, stock, charges and orders.
type Ledger interface {
	// RunInTx executes fn atomically. fn may be invoked more than once when the store retries on
	// contention, so it must not have side effects outside tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	Close(ctx context.Context) error
}

// LedgerTx exposes the reads and writes available inside a ledger transaction.
type LedgerTx interface {
	GetAddress(ctx context.Context, userID, addressID string) (domain.Address, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)

	ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	GetCartItem(ctx context.Context, itemID string) (domain.CartItem, error)
	// GetCartItems returns the subset of ids that exist and belong to userID.
	GetCartItems(ctx context.Context, userID string, itemIDs []string) ([]domain.CartItem, error)
	PutCartItem(ctx context.Context, item domain.CartItem) error
	DeleteCartItems(ctx context.Context, itemIDs []string) error

	GetStock(ctx context.Context, key string) (domain.StockRecord, error)
	// ReserveStock decrements available by qty only when available >= qty. It reports false without
	// modifying the record otherwise.
	ReserveStock(ctx context.Context, key string, qty int) (bool, error)
	// ReleaseStock increments available by qty unconditionally.
	ReleaseStock(ctx context.Context, key string, qty int) error

	GetCharges(ctx context.Context, userID string) (domain.ChargesSnapshot, error)
	PutCharges(ctx context.Context, snapshot domain.ChargesSnapshot) error
	DeleteCharges(ctx context.Context, userID string) error

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	InsertOrder(ctx context.Context, order domain.Order) error
	UpdateOrder(ctx context.Context, order domain.Order) error
	InsertLineItems(ctx context.Context, items []domain.OrderLineItem) error
	ListLineItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error)
}

// OrderReader serves non-transactional order reads used by listings.
type OrderReader interface {
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// HealthRepository checks backing dependencies for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
