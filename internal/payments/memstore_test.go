package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestInMemoryOrderStore_CreateConflict(t *testing.T) {
	t.Parallel()

	store := NewInMemoryOrderStore()
	order := PaymentOrder{OrderKey: "ORD1", ApplicationRef: "APP1", AmountMinor: 100, State: StateInitiated}

	if err := store.Create(context.Background(), order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(context.Background(), order); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}
}

func TestInMemoryOrderStore_FindRecentCompletedWindow(t *testing.T) {
	t.Parallel()

	store := NewInMemoryOrderStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	old := PaymentOrder{OrderKey: "ORD-old", ApplicationRef: "APP1", State: StateCompleted, CreatedAt: now.Add(-2 * time.Hour)}
	recent := PaymentOrder{OrderKey: "ORD-new", ApplicationRef: "APP1", State: StateCompleted, CreatedAt: now.Add(-10 * time.Minute)}
	pending := PaymentOrder{OrderKey: "ORD-pending", ApplicationRef: "APP1", State: StatePending, CreatedAt: now}

	for _, o := range []PaymentOrder{old, recent, pending} {
		if err := store.Create(context.Background(), o); err != nil {
			t.Fatalf("create %s: %v", o.OrderKey, err)
		}
	}

	got, found, err := store.FindRecentCompleted(context.Background(), "APP1", 30*time.Minute)
	if err != nil {
		t.Fatalf("find recent completed: %v", err)
	}
	if !found || got.OrderKey != "ORD-new" {
		t.Fatalf("expected ORD-new, got found=%v order=%+v", found, got)
	}

	// Outside the window nothing matches.
	_, found, err = store.FindRecentCompleted(context.Background(), "APP1", 5*time.Minute)
	if err != nil {
		t.Fatalf("find recent completed: %v", err)
	}
	if found {
		t.Fatalf("expected no match inside 5m window")
	}

	_, found, err = store.FindRecentCompleted(context.Background(), "APP2", time.Hour)
	if err != nil {
		t.Fatalf("find recent completed: %v", err)
	}
	if found {
		t.Fatalf("expected no match for other application")
	}
}

func TestInMemoryOrderStore_UpdateState(t *testing.T) {
	t.Parallel()

	store := NewInMemoryOrderStore()
	order := PaymentOrder{OrderKey: "ORD1", ApplicationRef: "APP1", State: StateInitiated}
	if err := store.Create(context.Background(), order); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap := json.RawMessage(`{"state":"COMPLETED"}`)
	updated, err := store.UpdateState(context.Background(), "ORD1", StateCompleted, "R1", snap)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.State != StateCompleted || updated.RemoteOrderID != "R1" {
		t.Fatalf("unexpected update %+v", updated)
	}

	if _, err := store.UpdateState(context.Background(), "missing", StatePending, "", nil); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
