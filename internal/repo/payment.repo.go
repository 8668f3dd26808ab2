package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
)

type PaymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	FindByNo(ctx context.Context, paymentNo string) (*domain.Payment, error)
	// LockByNo takes the payment's row lock; this is what serializes
	// reconciliation for one payment number.
	LockByNo(ctx context.Context, tx *sql.Tx, paymentNo string) (*domain.Payment, error)
	MarkSuccess(ctx context.Context, tx *sql.Tx, id int64, tradeNo string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	UpdateIntentData(ctx context.Context, id int64, data string) error
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error)
	// ExpireDue flips every pending payment past its expiry. Conditional on
	// current state, so concurrent sweeps are harmless.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, payment_no, order_id, method, amount, status, trade_no,
	intent_data, paid_at, expires_at, created_at, updated_at`

type paymentScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row paymentScanner) (*domain.Payment, error) {
	var (
		p       domain.Payment
		tradeNo sql.NullString
		intent  sql.NullString
		paidAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.PaymentNo, &p.OrderID, &p.Method, &p.Amount, &p.Status,
		&tradeNo, &intent, &paidAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TradeNo = tradeNo.String
	p.IntentData = intent.String
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}

func (r *paymentRepo) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO payments (payment_no, order_id, method, amount, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		payment.PaymentNo, payment.OrderID, payment.Method, payment.Amount,
		payment.Status, payment.ExpiresAt,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

func (r *paymentRepo) FindByNo(ctx context.Context, paymentNo string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_no = $1`, paymentNo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepo) LockByNo(ctx context.Context, tx *sql.Tx, paymentNo string) (*domain.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_no = $1 FOR UPDATE`, paymentNo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepo) MarkSuccess(ctx context.Context, tx *sql.Tx, id int64, tradeNo string, paidAt time.Time) (bool, error) {
	// Expired payments may still succeed; see the payment transition table.
	res, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'success', trade_no = $2, paid_at = $3, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'expired')`,
		id, tradeNo, paidAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *paymentRepo) MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *paymentRepo) UpdateIntentData(ctx context.Context, id int64, data string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET intent_data = $2, updated_at = now() WHERE id = $1`,
		id, data,
	)
	return err
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *paymentRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
