package applications

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError carries the intake validation failures for one submission.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Service handles application intake.
type Service struct {
	store Store
	newID func() string
	now   func() time.Time
	logf  func(format string, args ...any)
}

// NewService constructs an application Service.
func NewService(store Store, logf func(format string, args ...any)) *Service {
	if logf == nil {
		logf = log.Printf
	}
	return &Service{
		store: store,
		newID: defaultID,
		now:   time.Now,
		logf:  logf,
	}
}

func defaultID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "NF-" + raw[:12]
}

// Submit validates and persists a new application, assigning its id.
// Duplicate submissions by email or phone are rejected with the existing
// application so the client can recover its id.
func (s *Service) Submit(ctx context.Context, app Application) (Application, error) {
	if errs := app.Validate(); len(errs) > 0 {
		return Application{}, &ValidationError{Errors: errs}
	}

	if existing, found, err := s.store.FindByContact(ctx, app.Email, app.Phone); err != nil {
		return Application{}, fmt.Errorf("duplicate check: %w", err)
	} else if found {
		return existing, ErrApplicationExists
	}

	now := s.now()
	app.ID = s.newID()
	app.Status = StatusPending
	app.PaymentStatus = PaymentPending
	app.CreatedAt = now
	app.UpdatedAt = now

	if err := s.store.Create(ctx, app); err != nil {
		return Application{}, fmt.Errorf("persist application: %w", err)
	}
	return app, nil
}

// Get returns an application by id.
func (s *Service) Get(ctx context.Context, id string) (Application, error) {
	return s.store.FindByID(ctx, id)
}

// MarkPaid records a completed payment against an application. Called by the
// transport layer on the first transition into the completed payment state.
func (s *Service) MarkPaid(ctx context.Context, id, remoteOrderID string) (Application, error) {
	app, err := s.store.MarkPaid(ctx, id, remoteOrderID)
	if err != nil {
		return Application{}, fmt.Errorf("mark application %s paid: %w", id, err)
	}
	return app, nil
}
