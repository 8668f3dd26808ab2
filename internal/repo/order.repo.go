package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	FindByNo(ctx context.Context, orderNo string) (*domain.Order, error)
	// LockByID takes the order's row lock for the duration of the
	// transaction; reconciliation and cancellation serialize on it.
	LockByID(ctx context.Context, tx *sql.Tx, id int64) (*domain.Order, error)
	// UpdateStatus flips from → to conditionally and reports whether a row
	// changed. A false return means the order was not in the expected state.
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, id int64, tradeNo string, paidAt time.Time) (bool, error)
	InsertDetails(ctx context.Context, tx *sql.Tx, orderID int64, cardIDs []int64) error
	CountDetails(ctx context.Context, orderID int64) (int, error)
	ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, offset, limit int) ([]domain.Order, int, error)
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_no, user_id, good_id, good_name, good_price, quantity,
	total_amount, contact_info, status, paid_at, delivered_at, trade_no, created_at, updated_at`

type orderScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		userID      sql.NullInt64
		contact     sql.NullString
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
		tradeNo     sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderNo, &userID, &o.GoodID, &o.GoodName, &o.GoodPrice,
		&o.Quantity, &o.TotalAmount, &contact, &o.Status, &paidAt, &deliveredAt,
		&tradeNo, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		o.UserID = &userID.Int64
	}
	o.ContactInfo = contact.String
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Time
	}
	o.TradeNo = tradeNo.String
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	var userID any
	if order.UserID != nil {
		userID = *order.UserID
	}
	return tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_no, user_id, good_id, good_name, good_price,
			quantity, total_amount, contact_info, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		order.OrderNo, userID, order.GoodID, order.GoodName, order.GoodPrice,
		order.Quantity, order.TotalAmount, order.ContactInfo, order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepo) FindByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no = $1`, orderNo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (r *orderRepo) LockByID(ctx context.Context, tx *sql.Tx, id int64) (*domain.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, id int64, tradeNo string, paidAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'paid', trade_no = $2, paid_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, tradeNo, paidAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *orderRepo) InsertDetails(ctx context.Context, tx *sql.Tx, orderID int64, cardIDs []int64) error {
	// ON CONFLICT keeps a redelivered success callback from doubling the rows
	// even if it races past the payment row lock.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_details (order_id, card_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (order_id, card_id) DO NOTHING`,
		orderID, cardIDs,
	)
	return err
}

func (r *orderRepo) CountDetails(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM order_details WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, offset, limit int) ([]domain.Order, int, error) {
	var (
		countQuery, listQuery string
		countArgs, listArgs   []any
	)
	if status != "" {
		countQuery = `SELECT count(*) FROM orders WHERE user_id = $1 AND status = $2`
		countArgs = []any{userID, status}
		listQuery = `SELECT ` + orderColumns + ` FROM orders
			WHERE user_id = $1 AND status = $2
			ORDER BY created_at DESC OFFSET $3 LIMIT $4`
		listArgs = []any{userID, status, offset, limit}
	} else {
		countQuery = `SELECT count(*) FROM orders WHERE user_id = $1`
		countArgs = []any{userID}
		listQuery = `SELECT ` + orderColumns + ` FROM orders
			WHERE user_id = $1
			ORDER BY created_at DESC OFFSET $2 LIMIT $3`
		listArgs = []any{userID, offset, limit}
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

func (r *orderRepo) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`,
		time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
