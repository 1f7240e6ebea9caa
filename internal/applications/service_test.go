package applications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func validApplication() Application {
	return Application{
		Name:           "Asha Kumari",
		Email:          "asha@example.org",
		Phone:          "9876543210",
		DOB:            time.Date(2006, 4, 12, 0, 0, 0, 0, time.UTC),
		Gender:         "female",
		Category:       "B.Sc",
		School:         "Govt College",
		State:          "Bihar",
		District:       "Patna",
		Pincode:        "800001",
		Address:        "12 College Road",
		IncomeAmount:   120000,
		IncomeBand:     "1-2L",
		Achievements:   "State merit list",
		Recommendation: "Principal",
		SOP:            strings.Repeat("I want to continue my studies. ", 3),
	}
}

func TestSubmit_AssignsIDAndDefaults(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	svc := NewService(store, func(format string, args ...any) {})

	app, err := svc.Submit(context.Background(), validApplication())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if app.ID == "" {
		t.Fatalf("expected application id to be assigned")
	}
	if app.Status != StatusPending || app.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected defaults %+v", app)
	}

	stored, err := store.FindByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("find stored: %v", err)
	}
	if stored.Email != "asha@example.org" {
		t.Fatalf("unexpected stored application %+v", stored)
	}
}

func TestSubmit_ValidationFailures(t *testing.T) {
	t.Parallel()

	svc := NewService(NewInMemoryStore(), func(format string, args ...any) {})

	app := validApplication()
	app.Email = "not-an-email"
	app.Phone = "12345"
	app.SOP = "too short"

	_, err := svc.Submit(context.Background(), app)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 3 {
		t.Fatalf("expected 3 failures, got %v", verr.Errors)
	}
}

func TestSubmit_DuplicateContact(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	svc := NewService(store, func(format string, args ...any) {})

	first, err := svc.Submit(context.Background(), validApplication())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	dup := validApplication()
	dup.Email = "other@example.org" // same phone
	existing, err := svc.Submit(context.Background(), dup)
	if !errors.Is(err, ErrApplicationExists) {
		t.Fatalf("expected ErrApplicationExists, got %v", err)
	}
	if existing.ID != first.ID {
		t.Fatalf("expected existing application to be returned, got %+v", existing)
	}
}

func TestMarkPaid(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	svc := NewService(store, func(format string, args ...any) {})

	app, err := svc.Submit(context.Background(), validApplication())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	updated, err := svc.MarkPaid(context.Background(), app.ID, "R1")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if updated.Status != StatusPaid || updated.PaymentStatus != PaymentCompleted || updated.PaymentOrderID != "R1" {
		t.Fatalf("unexpected application %+v", updated)
	}

	if _, err := svc.MarkPaid(context.Background(), "missing", "R1"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}
