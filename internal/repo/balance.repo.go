package repo

import (
	"context"
	"database/sql"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/shopspring/decimal"
)

type BalanceRepo interface {
	// LockUser takes the user's row lock so the before/after snapshot on the
	// balance record is consistent with the balance update.
	LockUser(ctx context.Context, tx *sql.Tx, userID int64) (*domain.User, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, userID int64, balance decimal.Decimal) error
	InsertRecord(ctx context.Context, tx *sql.Tx, rec *domain.BalanceRecord) error
	ListRecords(ctx context.Context, userID int64, offset, limit int) ([]domain.BalanceRecord, error)
	CreateUser(ctx context.Context, user *domain.User) error
}

type balanceRepo struct {
	db *sql.DB
}

func NewBalanceRepo(db *sql.DB) BalanceRepo {
	return &balanceRepo{db: db}
}

func (r *balanceRepo) LockUser(ctx context.Context, tx *sql.Tx, userID int64) (*domain.User, error) {
	var u domain.User
	err := tx.QueryRowContext(ctx,
		`SELECT id, email, balance, created_at, updated_at FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&u.ID, &u.Email, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *balanceRepo) UpdateBalance(ctx context.Context, tx *sql.Tx, userID int64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = $2, updated_at = now() WHERE id = $1`,
		userID, balance,
	)
	return err
}

func (r *balanceRepo) InsertRecord(ctx context.Context, tx *sql.Tx, rec *domain.BalanceRecord) error {
	var related any
	if rec.RelatedID != nil {
		related = *rec.RelatedID
	}
	return tx.QueryRowContext(ctx, `
		INSERT INTO balance_records (user_id, type, amount, balance_before, balance_after, description, related_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		rec.UserID, rec.Type, rec.Amount, rec.BalanceBefore, rec.BalanceAfter,
		rec.Description, related,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (r *balanceRepo) ListRecords(ctx context.Context, userID int64, offset, limit int) ([]domain.BalanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, balance_before, balance_after, description, related_id, created_at
		FROM balance_records WHERE user_id = $1
		ORDER BY id DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.BalanceRecord
	for rows.Next() {
		var (
			rec     domain.BalanceRecord
			desc    sql.NullString
			related sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Amount,
			&rec.BalanceBefore, &rec.BalanceAfter, &desc, &related, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Description = desc.String
		if related.Valid {
			rec.RelatedID = &related.Int64
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *balanceRepo) CreateUser(ctx context.Context, user *domain.User) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, balance) VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		user.Email, user.Balance,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}
