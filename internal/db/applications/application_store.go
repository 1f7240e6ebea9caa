package applicationsdb

import (
	"context"
	"database/sql"
	"errors"

	"bursary/internal/applications"
)

// Store persists scholarship applications in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store backed by Postgres.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the applications table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			dob DATE NOT NULL,
			gender TEXT NOT NULL,
			category TEXT NOT NULL,
			school TEXT NOT NULL,
			state TEXT NOT NULL,
			district TEXT NOT NULL,
			pincode TEXT NOT NULL,
			address TEXT NOT NULL,
			income_amount BIGINT NOT NULL,
			income_band TEXT NOT NULL,
			achievements TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			sop TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			payment_order_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS applications_email_phone ON applications (email, phone)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const appColumns = `id, name, email, phone, dob, gender, category, school, state, district,
	pincode, address, income_amount, income_band, achievements, recommendation, sop,
	status, payment_status, payment_order_id, created_at, updated_at`

func (s *Store) Create(ctx context.Context, app applications.Application) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, name, email, phone, dob, gender, category, school, state, district,
			pincode, address, income_amount, income_band, achievements, recommendation, sop,
			status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		ON CONFLICT (id) DO NOTHING`,
		app.ID, app.Name, app.Email, app.Phone, app.DOB, app.Gender, app.Category, app.School,
		app.State, app.District, app.Pincode, app.Address, app.IncomeAmount, app.IncomeBand,
		app.Achievements, app.Recommendation, app.SOP, app.Status, app.PaymentStatus, app.CreatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return applications.ErrApplicationExists
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (applications.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return applications.Application{}, applications.ErrApplicationNotFound
	}
	return app, err
}

func (s *Store) FindByContact(ctx context.Context, email, phone string) (applications.Application, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+appColumns+`
		FROM applications
		WHERE email = $1 OR phone = $2
		LIMIT 1`,
		email, phone,
	)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return applications.Application{}, false, nil
	}
	if err != nil {
		return applications.Application{}, false, err
	}
	return app, true, nil
}

func (s *Store) MarkPaid(ctx context.Context, id, remoteOrderID string) (applications.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE applications
		SET status = $2, payment_status = $3, payment_order_id = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+appColumns,
		id, applications.StatusPaid, applications.PaymentCompleted, remoteOrderID,
	)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return applications.Application{}, applications.ErrApplicationNotFound
	}
	return app, err
}

func scanApplication(row *sql.Row) (applications.Application, error) {
	var (
		app     applications.Application
		orderID sql.NullString
	)
	err := row.Scan(
		&app.ID, &app.Name, &app.Email, &app.Phone, &app.DOB, &app.Gender, &app.Category,
		&app.School, &app.State, &app.District, &app.Pincode, &app.Address,
		&app.IncomeAmount, &app.IncomeBand, &app.Achievements, &app.Recommendation, &app.SOP,
		&app.Status, &app.PaymentStatus, &orderID, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return applications.Application{}, err
	}
	app.PaymentOrderID = orderID.String
	return app, nil
}
