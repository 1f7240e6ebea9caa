package paymentsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bursary/internal/payments"
)

// OrderStore persists payment orders in Postgres.
type OrderStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the payment_orders table if it does not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS payment_orders (
			order_key TEXT PRIMARY KEY,
			application_ref TEXT NOT NULL,
			amount_minor BIGINT NOT NULL,
			state TEXT NOT NULL,
			remote_order_id TEXT,
			snapshot JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS payment_orders_app_state_created
			ON payment_orders (application_ref, state, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `order_key, application_ref, amount_minor, state, remote_order_id, snapshot, created_at, updated_at`

func (s *OrderStore) Create(ctx context.Context, order payments.PaymentOrder) error {
	if order.OrderKey == "" {
		return fmt.Errorf("order key required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_orders (order_key, application_ref, amount_minor, state, remote_order_id, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (order_key) DO NOTHING`,
		order.OrderKey, order.ApplicationRef, order.AmountMinor, string(order.State),
		nullString(order.RemoteOrderID), nullBytes(order.Snapshot), order.CreatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return payments.ErrOrderExists
	}
	return nil
}

func (s *OrderStore) FindByKey(ctx context.Context, orderKey string) (payments.PaymentOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM payment_orders
		WHERE order_key = $1`,
		orderKey,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payments.PaymentOrder{}, payments.ErrOrderNotFound
	}
	return order, err
}

func (s *OrderStore) FindRecentCompleted(ctx context.Context, applicationRef string, window time.Duration) (payments.PaymentOrder, bool, error) {
	cutoff := s.now().Add(-window)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM payment_orders
		WHERE application_ref = $1 AND state = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`,
		applicationRef, string(payments.StateCompleted), cutoff,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payments.PaymentOrder{}, false, nil
	}
	if err != nil {
		return payments.PaymentOrder{}, false, err
	}
	return order, true, nil
}

func (s *OrderStore) UpdateState(ctx context.Context, orderKey string, state payments.State, remoteOrderID string, snapshot json.RawMessage) (payments.PaymentOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE payment_orders
		SET state = $2, remote_order_id = $3, snapshot = $4, updated_at = NOW()
		WHERE order_key = $1
		RETURNING `+orderColumns,
		orderKey, string(state), nullString(remoteOrderID), nullBytes(snapshot),
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payments.PaymentOrder{}, payments.ErrOrderNotFound
	}
	return order, err
}

func scanOrder(row *sql.Row) (payments.PaymentOrder, error) {
	var (
		order    payments.PaymentOrder
		state    string
		remoteID sql.NullString
		snapshot []byte
	)
	err := row.Scan(
		&order.OrderKey, &order.ApplicationRef, &order.AmountMinor, &state,
		&remoteID, &snapshot, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return payments.PaymentOrder{}, err
	}
	order.State = payments.State(state)
	order.RemoteOrderID = remoteID.String
	order.Snapshot = snapshot
	return order, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullBytes(v []byte) any {
	if len(v) == 0 {
		return nil
	}
	return v
}
