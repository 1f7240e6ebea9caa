package payments

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// NewInMemoryOrderStore constructs an in-memory OrderStore. It backs tests
// and the no-database fallback in the server wiring.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders: make(map[string]PaymentOrder),
		now:    time.Now,
	}
}

// InMemoryOrderStore keeps orders in a mutex-guarded map.
type InMemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]PaymentOrder
	now    func() time.Time
}

func (s *InMemoryOrderStore) Create(ctx context.Context, order PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.OrderKey]; ok {
		return ErrOrderExists
	}
	s.orders[order.OrderKey] = order
	return nil
}

func (s *InMemoryOrderStore) FindByKey(ctx context.Context, orderKey string) (PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderKey]
	if !ok {
		return PaymentOrder{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *InMemoryOrderStore) FindRecentCompleted(ctx context.Context, applicationRef string, window time.Duration) (PaymentOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	var best PaymentOrder
	found := false
	for _, order := range s.orders {
		if order.ApplicationRef != applicationRef || order.State != StateCompleted {
			continue
		}
		if order.CreatedAt.Before(cutoff) {
			continue
		}
		if !found || order.CreatedAt.After(best.CreatedAt) {
			best = order
			found = true
		}
	}
	return best, found, nil
}

func (s *InMemoryOrderStore) UpdateState(ctx context.Context, orderKey string, state State, remoteOrderID string, snapshot json.RawMessage) (PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderKey]
	if !ok {
		return PaymentOrder{}, ErrOrderNotFound
	}
	order.State = state
	order.RemoteOrderID = remoteOrderID
	order.Snapshot = snapshot
	order.UpdatedAt = s.now()
	s.orders[orderKey] = order
	return order, nil
}
