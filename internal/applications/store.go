package applications

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrApplicationExists signals a duplicate application by email or phone.
var ErrApplicationExists = errors.New("application already exists")

// ErrApplicationNotFound signals an unknown application id.
var ErrApplicationNotFound = errors.New("application not found")

// Store is the contract over the persistent application store.
type Store interface {
	Create(ctx context.Context, app Application) error
	FindByID(ctx context.Context, id string) (Application, error)
	// FindByContact returns an application matching the email or the phone,
	// if one exists.
	FindByContact(ctx context.Context, email, phone string) (Application, bool, error)
	// MarkPaid records a completed payment against the application and
	// returns the updated record.
	MarkPaid(ctx context.Context, id, remoteOrderID string) (Application, error)
}

// NewInMemoryStore constructs an in-memory Store for tests and the
// no-database fallback.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		apps: make(map[string]Application),
		now:  time.Now,
	}
}

// InMemoryStore keeps applications in a mutex-guarded map.
type InMemoryStore struct {
	mu   sync.Mutex
	apps map[string]Application
	now  func() time.Time
}

func (s *InMemoryStore) Create(ctx context.Context, app Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return ErrApplicationExists
	}
	s.apps[app.ID] = app
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return Application{}, ErrApplicationNotFound
	}
	return app, nil
}

func (s *InMemoryStore) FindByContact(ctx context.Context, email, phone string) (Application, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.Email == email || app.Phone == phone {
			return app, true, nil
		}
	}
	return Application{}, false, nil
}

func (s *InMemoryStore) MarkPaid(ctx context.Context, id, remoteOrderID string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return Application{}, ErrApplicationNotFound
	}
	app.Status = StatusPaid
	app.PaymentStatus = PaymentCompleted
	app.PaymentOrderID = remoteOrderID
	app.UpdatedAt = s.now()
	s.apps[id] = app
	return app, nil
}
