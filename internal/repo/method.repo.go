package repo

import (
	"context"
	"database/sql"

	"github.com/jhzhou002/card-shop/internal/domain"
)

type MethodRepo interface {
	FindByCode(ctx context.Context, code string) (*domain.PaymentMethod, error)
	ListActive(ctx context.Context) ([]domain.PaymentMethod, error)
	Upsert(ctx context.Context, m *domain.PaymentMethod) error
}

type methodRepo struct {
	db *sql.DB
}

func NewMethodRepo(db *sql.DB) MethodRepo {
	return &methodRepo{db: db}
}

const methodColumns = `id, code, name, provider, min_amount, max_amount, fee_rate, active, created_at`

func (r *methodRepo) FindByCode(ctx context.Context, code string) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := r.db.QueryRowContext(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE code = $1`, code,
	).Scan(&m.ID, &m.Code, &m.Name, &m.Provider, &m.MinAmount, &m.MaxAmount,
		&m.FeeRate, &m.Active, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *methodRepo) ListActive(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.Provider, &m.MinAmount,
			&m.MaxAmount, &m.FeeRate, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *methodRepo) Upsert(ctx context.Context, m *domain.PaymentMethod) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO payment_methods (code, name, provider, min_amount, max_amount, fee_rate, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name, provider = EXCLUDED.provider,
			min_amount = EXCLUDED.min_amount, max_amount = EXCLUDED.max_amount,
			fee_rate = EXCLUDED.fee_rate, active = EXCLUDED.active
		RETURNING id, created_at`,
		m.Code, m.Name, m.Provider, m.MinAmount, m.MaxAmount, m.FeeRate, m.Active,
	).Scan(&m.ID, &m.CreatedAt)
}
