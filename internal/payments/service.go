package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bursary/internal/gateway"
)

// Gateway is the outbound payment-gateway surface the service depends on.
// Credential acquisition happens inside the client; its failures surface as
// gateway.ErrCredential, request failures as gateway.ErrRequestFailed.
type Gateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (gateway.CreateOrderResponse, error)
	OrderStatus(ctx context.Context, orderKey string) (gateway.OrderStatusResponse, error)
}

// ServiceConfig tunes the payment service.
type ServiceConfig struct {
	// DuplicateWindow is how long a completed order blocks further payment
	// attempts for the same application. Defaults to 30m.
	DuplicateWindow time.Duration
	// OrderExpiry is the expiry window handed to the gateway on order
	// creation. Defaults to 30m.
	OrderExpiry time.Duration
	// CheckoutMessage is shown to the payer on the gateway's checkout page.
	CheckoutMessage string
	Logf            func(format string, args ...any)
	Now             func() time.Time
}

// Service orchestrates the payment-order lifecycle: idempotent initiation
// against the gateway and reconciliation of the gateway's authoritative
// order state onto the local record.
type Service struct {
	store    OrderStore
	gw       Gateway
	notifier Notifier

	window      time.Duration
	orderExpiry time.Duration
	message     string
	logf        func(format string, args ...any)
	now         func() time.Time
}

// NewService constructs a payment Service.
func NewService(store OrderStore, gw Gateway, notifier Notifier, cfg ServiceConfig) *Service {
	window := cfg.DuplicateWindow
	if window <= 0 {
		window = 30 * time.Minute
	}
	orderExpiry := cfg.OrderExpiry
	if orderExpiry <= 0 {
		orderExpiry = 30 * time.Minute
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Service{
		store:       store,
		gw:          gw,
		notifier:    notifier,
		window:      window,
		orderExpiry: orderExpiry,
		message:     cfg.CheckoutMessage,
		logf:        logf,
		now:         now,
	}
}

// InitiateRequest describes one payment-initiation attempt.
type InitiateRequest struct {
	OrderKey       string
	ApplicationRef string
	AmountMinor    int64
	Meta           gateway.MetaInfo
}

// InitiateResult is returned to the client so it can continue checkout.
type InitiateResult struct {
	RemoteOrderID string
	RedirectURL   string
	ExpiresAt     time.Time
}

// Initiate creates a payment order exactly once per order key. The local
// record is persisted only after the gateway acknowledges the order, so a
// failed gateway call leaves the store untouched and the same key retries
// cleanly.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	if req.OrderKey == "" {
		return InitiateResult{}, errors.New("order key required")
	}
	if req.ApplicationRef == "" {
		return InitiateResult{}, errors.New("application reference required")
	}
	if req.AmountMinor <= 0 {
		return InitiateResult{}, fmt.Errorf("amount must be positive, got %d", req.AmountMinor)
	}

	existing, err := s.store.FindByKey(ctx, req.OrderKey)
	if err == nil {
		return InitiateResult{}, &DuplicateOrderError{Existing: existing}
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return InitiateResult{}, fmt.Errorf("find order %s: %w", req.OrderKey, err)
	}

	prior, found, err := s.store.FindRecentCompleted(ctx, req.ApplicationRef, s.window)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("duplicate check for application %s: %w", req.ApplicationRef, err)
	}
	if found {
		return InitiateResult{}, &AlreadyPaidError{Existing: prior}
	}

	created, err := s.gw.CreateOrder(ctx, gateway.CreateOrderRequest{
		OrderKey:    req.OrderKey,
		AmountMinor: req.AmountMinor,
		ExpireAfter: s.orderExpiry,
		Message:     s.message,
		Meta:        req.Meta,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	now := s.now()
	order := PaymentOrder{
		OrderKey:       req.OrderKey,
		ApplicationRef: req.ApplicationRef,
		AmountMinor:    req.AmountMinor,
		State:          StateInitiated,
		RemoteOrderID:  created.RemoteOrderID,
		Snapshot:       created.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, order); err != nil {
		if errors.Is(err, ErrOrderExists) {
			// A concurrent initiation won the race after our existence
			// check; the store's uniqueness constraint is the real guard.
			if existing, findErr := s.store.FindByKey(ctx, req.OrderKey); findErr == nil {
				return InitiateResult{}, &DuplicateOrderError{Existing: existing}
			}
			return InitiateResult{}, &DuplicateOrderError{Existing: order}
		}
		perr := &PersistError{OrderKey: req.OrderKey, RemoteOrderID: created.RemoteOrderID, Err: err}
		s.logf("payments: %v", perr)
		return InitiateResult{}, perr
	}

	return InitiateResult{
		RemoteOrderID: created.RemoteOrderID,
		RedirectURL:   created.RedirectURL,
		ExpiresAt:     created.ExpiresAt,
	}, nil
}

// Reset forces an order back to pending so a later reconciliation can pick a
// fresh state. This is the administrative escape hatch from terminal states;
// normal reconciliation never leaves them.
func (s *Service) Reset(ctx context.Context, orderKey string) (PaymentOrder, error) {
	order, err := s.store.FindByKey(ctx, orderKey)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return PaymentOrder{}, ErrOrderNotFound
		}
		return PaymentOrder{}, fmt.Errorf("find order %s: %w", orderKey, err)
	}

	updated, err := s.store.UpdateState(ctx, orderKey, StatePending, order.RemoteOrderID, order.Snapshot)
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("reset order %s: %w", orderKey, err)
	}
	s.logf("payments: order %s administratively reset from %s to pending", orderKey, order.State)
	return updated, nil
}

// ReconcileResult carries the updated order plus the state it held before
// this reconciliation, so callers can react to the transition.
type ReconcileResult struct {
	Order    PaymentOrder
	Previous State
}

// Transitioned reports whether this reconciliation changed the order state.
func (r ReconcileResult) Transitioned() bool {
	return r.Previous != r.Order.State
}

// Reconcile maps the gateway's authoritative order state onto the local
// record. The update is persisted unconditionally; the completion
// notification fires only on the first transition into Completed.
func (s *Service) Reconcile(ctx context.Context, orderKey string) (ReconcileResult, error) {
	order, err := s.store.FindByKey(ctx, orderKey)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ReconcileResult{}, ErrOrderNotFound
		}
		return ReconcileResult{}, fmt.Errorf("find order %s: %w", orderKey, err)
	}

	status, err := s.gw.OrderStatus(ctx, orderKey)
	if err != nil {
		return ReconcileResult{}, err
	}

	next, recognized := StateFromRemote(status.State)
	if !recognized {
		s.logf("payments: order %s reported unrecognized gateway state %q, treating as pending", orderKey, status.State)
	}

	prev := order.State
	if prev.Terminal() && next != prev {
		// Terminal states only re-confirm; leaving them needs an
		// administrative path, not reconciliation.
		s.logf("payments: order %s is terminal (%s), ignoring remote transition to %s", orderKey, prev, next)
		next = prev
	}

	remoteID := order.RemoteOrderID
	if remoteID == "" {
		remoteID = status.RemoteOrderID
	}

	updated, err := s.store.UpdateState(ctx, orderKey, next, remoteID, status.Raw)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("update order %s: %w", orderKey, err)
	}

	if prev != StateCompleted && updated.State == StateCompleted {
		notice := CompletedNotice{
			OrderKey:       updated.OrderKey,
			ApplicationRef: updated.ApplicationRef,
			RemoteOrderID:  updated.RemoteOrderID,
			AmountMinor:    updated.AmountMinor,
		}
		if err := s.notifier.PaymentCompleted(ctx, notice); err != nil {
			s.logf("payments: confirmation for order %s failed: %v", orderKey, err)
		}
	}

	return ReconcileResult{Order: updated, Previous: prev}, nil
}
