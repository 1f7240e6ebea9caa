package payments

import (
	"context"
	"encoding/json"
	"time"
)

// OrderStore is the contract over the persistent payment-order store.
// Per-key mutation relies on the store's native uniqueness and atomic
// update-by-key guarantees; no optimistic concurrency is required.
type OrderStore interface {
	// Create persists a new order, returning ErrOrderExists if the order
	// key is already taken.
	Create(ctx context.Context, order PaymentOrder) error

	// FindByKey returns the order for a key, or ErrOrderNotFound.
	FindByKey(ctx context.Context, orderKey string) (PaymentOrder, error)

	// FindRecentCompleted returns the most recent completed order for an
	// application created within the window, if any.
	FindRecentCompleted(ctx context.Context, applicationRef string, window time.Duration) (PaymentOrder, bool, error)

	// UpdateState replaces the mutable fields of an order and returns the
	// updated record, or ErrOrderNotFound.
	UpdateState(ctx context.Context, orderKey string, state State, remoteOrderID string, snapshot json.RawMessage) (PaymentOrder, error)
}
