package repo

import (
	"context"
	"database/sql"

	"github.com/jhzhou002/card-shop/internal/domain"
)

type GoodRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.Good, error)
	// FindByIDTx reads the good inside the order-creation transaction so the
	// frozen name/price match what the same transaction reserves against.
	FindByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*domain.Good, error)
	Create(ctx context.Context, good *domain.Good) error
	SetStatus(ctx context.Context, id int64, status domain.GoodStatus) (bool, error)
	ListListed(ctx context.Context) ([]domain.Good, error)
}

type goodRepo struct {
	db *sql.DB
}

func NewGoodRepo(db *sql.DB) GoodRepo {
	return &goodRepo{db: db}
}

const goodColumns = `id, name, price, buy_limit, status, created_at, updated_at`

func scanGood(row *sql.Row) (*domain.Good, error) {
	var g domain.Good
	err := row.Scan(&g.ID, &g.Name, &g.Price, &g.BuyLimit, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *goodRepo) FindByID(ctx context.Context, id int64) (*domain.Good, error) {
	return scanGood(r.db.QueryRowContext(ctx,
		`SELECT `+goodColumns+` FROM goods WHERE id = $1`, id))
}

func (r *goodRepo) FindByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*domain.Good, error) {
	return scanGood(tx.QueryRowContext(ctx,
		`SELECT `+goodColumns+` FROM goods WHERE id = $1`, id))
}

func (r *goodRepo) Create(ctx context.Context, good *domain.Good) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO goods (name, price, buy_limit, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		good.Name, good.Price, good.BuyLimit, good.Status,
	).Scan(&good.ID, &good.CreatedAt, &good.UpdatedAt)
}

func (r *goodRepo) SetStatus(ctx context.Context, id int64, status domain.GoodStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goods SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *goodRepo) ListListed(ctx context.Context) ([]domain.Good, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goodColumns+` FROM goods WHERE status = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goods []domain.Good
	for rows.Next() {
		var g domain.Good
		if err := rows.Scan(&g.ID, &g.Name, &g.Price, &g.BuyLimit, &g.Status,
			&g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		goods = append(goods, g)
	}
	return goods, rows.Err()
}
