package repo

import (
	"context"
	"database/sql"

	"github.com/jhzhou002/card-shop/internal/domain"
)

// CardRepo is the card pool's storage. Every status change goes through the
// conditional statements here; nothing else writes card rows.
type CardRepo interface {
	// Reserve atomically flips up to quantity unused cards of the good to
	// reserved, stamping them with the reserving order. It returns the ids it
	// claimed, which may be fewer than requested; the caller decides whether
	// that is insufficient stock and rolls the transaction back.
	Reserve(ctx context.Context, tx *sql.Tx, goodID, orderID int64, quantity int) ([]int64, error)
	// Finalize flips the given reserved cards to used for the order. Calling
	// it again for the same order is a no-op; a card already used by a
	// different order is an invariant violation.
	Finalize(ctx context.Context, tx *sql.Tx, cardIDs []int64, orderID int64) error
	// Release returns an order's reserved cards to the unused pool.
	Release(ctx context.Context, tx *sql.Tx, orderID int64) error
	ReservedIDs(ctx context.Context, tx *sql.Tx, orderID int64) ([]int64, error)
	CountUnused(ctx context.Context, goodID int64) (int, error)
	CountUnusedTx(ctx context.Context, tx *sql.Tx, goodID int64) (int, error)
	// UnusedCounts returns the unused-card count per good in one grouped
	// query. Goods with no unused cards are absent from the map.
	UnusedCounts(ctx context.Context, goodIDs []int64) (map[int64]int, error)
	BulkInsert(ctx context.Context, goodID int64, secrets []string) error
	// ExpireUnused retires a good's remaining unused cards. Reserved and used
	// cards are untouched; in-flight orders keep their claims.
	ExpireUnused(ctx context.Context, goodID int64) (int64, error)
	SecretsByOrder(ctx context.Context, orderID int64) ([]string, error)
}

type cardRepo struct {
	db *sql.DB
}

func NewCardRepo(db *sql.DB) CardRepo {
	return &cardRepo{db: db}
}

func (r *cardRepo) Reserve(ctx context.Context, tx *sql.Tx, goodID, orderID int64, quantity int) ([]int64, error) {
	// Oldest-first under SKIP LOCKED: concurrent reservations never block on
	// or double-claim the same row, they just see fewer candidates.
	rows, err := tx.QueryContext(ctx, `
		UPDATE cards SET status = 'reserved', order_id = $3, updated_at = now()
		WHERE id IN (
			SELECT id FROM cards
			WHERE good_id = $1 AND status = 'unused'
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`,
		goodID, quantity, orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *cardRepo) Finalize(ctx context.Context, tx *sql.Tx, cardIDs []int64, orderID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, order_id FROM cards WHERE id = ANY($1) FOR UPDATE`,
		cardIDs,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	var toFlip []int64
	for rows.Next() {
		var (
			id     int64
			status domain.CardStatus
			owner  sql.NullInt64
		)
		if err := rows.Scan(&id, &status, &owner); err != nil {
			return err
		}
		switch {
		case status == domain.CardReserved && owner.Valid && owner.Int64 == orderID:
			toFlip = append(toFlip, id)
		case status == domain.CardUsed && owner.Valid && owner.Int64 == orderID:
			// already finalized for this order, nothing to do
		default:
			return domain.InvariantViolation(
				"card %d is %s for order %d, cannot finalize for order %d",
				id, status, owner.Int64, orderID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(toFlip) == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cards SET status = 'used', used_at = now(), updated_at = now()
		WHERE id = ANY($1) AND status = 'reserved' AND order_id = $2`,
		toFlip, orderID,
	)
	return err
}

func (r *cardRepo) Release(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cards SET status = 'unused', order_id = NULL, updated_at = now()
		WHERE order_id = $1 AND status = 'reserved'`,
		orderID,
	)
	return err
}

func (r *cardRepo) ReservedIDs(ctx context.Context, tx *sql.Tx, orderID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM cards WHERE order_id = $1 AND status = 'reserved' ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *cardRepo) CountUnused(ctx context.Context, goodID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM cards WHERE good_id = $1 AND status = 'unused'`,
		goodID,
	).Scan(&n)
	return n, err
}

func (r *cardRepo) CountUnusedTx(ctx context.Context, tx *sql.Tx, goodID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM cards WHERE good_id = $1 AND status = 'unused'`,
		goodID,
	).Scan(&n)
	return n, err
}

func (r *cardRepo) UnusedCounts(ctx context.Context, goodIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(goodIDs))
	if len(goodIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT good_id, count(*) FROM cards
		WHERE good_id = ANY($1) AND status = 'unused'
		GROUP BY good_id`,
		goodIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			goodID int64
			n      int
		)
		if err := rows.Scan(&goodID, &n); err != nil {
			return nil, err
		}
		counts[goodID] = n
	}
	return counts, rows.Err()
}

func (r *cardRepo) BulkInsert(ctx context.Context, goodID int64, secrets []string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (good_id, card_info, status)
		SELECT $1, unnest($2::text[]), 'unused'`,
		goodID, secrets,
	)
	return err
}

func (r *cardRepo) ExpireUnused(ctx context.Context, goodID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards SET status = 'expired', updated_at = now()
		WHERE good_id = $1 AND status = 'unused'`,
		goodID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *cardRepo) SecretsByOrder(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.card_info FROM order_details d
		JOIN cards c ON c.id = d.card_id
		WHERE d.order_id = $1
		ORDER BY d.id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secrets []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		secrets = append(secrets, s)
	}
	return secrets, rows.Err()
}
