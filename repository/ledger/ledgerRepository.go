package ledgerrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripbot/model"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("ledger: record not found")
	// ErrConflict is returned when a unique index (telegram id, charge id,
	// refund per purchase) rejects a write.
	ErrConflict = errors.New("ledger: unique constraint violated")
)

// Tx is the set of operations available inside a ledger transaction.
type Tx interface {
	UserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	LockUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	InsertUser(ctx context.Context, u *model.User) error
	UpdateUserCredits(ctx context.Context, id uuid.UUID, credits int64, activeAt time.Time) error
	InsertHistory(ctx context.Context, e *model.CreditHistoryEntry) error
	// HistoryByCharge finds the entry a user got for chargeID under action.
	HistoryByCharge(ctx context.Context, userID uuid.UUID, chargeID, action string) (*model.CreditHistoryEntry, error)

	PurchaseByChargeID(ctx context.Context, chargeID string) (*model.Purchase, error)
	LockPurchase(ctx context.Context, chargeID string) (*model.Purchase, error)
	InsertPurchase(ctx context.Context, p *model.Purchase) error
	MarkPurchaseRefunded(ctx context.Context, id uuid.UUID) error
	InsertRefund(ctx context.Context, r *model.Refund) error
}

type Repo interface {
	// WithTx runs fn in a single transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	UserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	PurchaseByChargeID(ctx context.Context, chargeID string) (*model.Purchase, error)
	// ListHistory returns entries oldest first. limit <= 0 returns everything.
	ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.CreditHistoryEntry, error)
	HistoryByCharge(ctx context.Context, userID uuid.UUID, chargeID, action string) (*model.CreditHistoryEntry, error)

	PurchaseStats(ctx context.Context) (model.PurchaseStats, error)
	DailyRevenue(ctx context.Context, since time.Time) ([]model.DayRevenue, error)
	CountUsers(ctx context.Context) (int64, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	pool *pgxpool.Pool
	queries
}

func New(pool *pgxpool.Pool) Repo { return &repo{pool: pool, queries: queries{pool}} }

func (r *repo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(queries{tx})
	})
}

func (r *repo) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.CreditHistoryEntry, error) {
	q := `
SELECT id, user_id, action, amount, balance_after, purchase_id, charge_id, created_at
FROM credit_history
WHERE user_id=$1
ORDER BY created_at, id
OFFSET $2`
	args := []any{userID, offset}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CreditHistoryEntry
	for rows.Next() {
		var e model.CreditHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Amount, &e.BalanceAfter, &e.PurchaseID, &e.ChargeID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) PurchaseStats(ctx context.Context) (model.PurchaseStats, error) {
	const q = `
SELECT COALESCE(SUM(price), 0),
       COALESCE(SUM(price) FILTER (WHERE is_refunded), 0),
       COUNT(*),
       (SELECT COUNT(*) FROM refunds)
FROM purchases`
	var s model.PurchaseStats
	err := r.q.QueryRow(ctx, q).Scan(&s.GrossRevenue, &s.RefundedRevenue, &s.Purchases, &s.Refunds)
	return s, err
}

func (r *repo) DailyRevenue(ctx context.Context, since time.Time) ([]model.DayRevenue, error) {
	const q = `
SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, SUM(price)
FROM purchases
WHERE created_at >= $1 AND NOT is_refunded
GROUP BY day
ORDER BY day`
	rows, err := r.q.Query(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DayRevenue
	for rows.Next() {
		var d model.DayRevenue
		if err := rows.Scan(&d.Day, &d.Revenue); err != nil {
			return nil, err
		}
		d.Day = d.Day.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// queries implements Tx over either the pool or an open transaction.
type queries struct{ q querier }

const userColumns = `id, telegram_id, first_name, last_name, username, credits, created_at, last_active_at`

func (s queries) scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Username, &u.Credits, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s queries) UserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s queries) LockUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, id))
}

func (s queries) UserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id=$1`, telegramID))
}

func (s queries) InsertUser(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, telegram_id, first_name, last_name, username, credits, created_at, last_active_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := s.q.Exec(ctx, q, u.ID, u.TelegramID, u.FirstName, u.LastName, u.Username, u.Credits, u.CreatedAt, u.LastActiveAt)
	return mapErr(err)
}

func (s queries) UpdateUserCredits(ctx context.Context, id uuid.UUID, credits int64, activeAt time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE users SET credits=$2, last_active_at=$3 WHERE id=$1`, id, credits, activeAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s queries) InsertHistory(ctx context.Context, e *model.CreditHistoryEntry) error {
	const q = `
INSERT INTO credit_history (user_id, action, amount, balance_after, purchase_id, charge_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`
	return mapErr(s.q.QueryRow(ctx, q, e.UserID, e.Action, e.Amount, e.BalanceAfter, e.PurchaseID, e.ChargeID, e.CreatedAt).Scan(&e.ID))
}

func (s queries) HistoryByCharge(ctx context.Context, userID uuid.UUID, chargeID, action string) (*model.CreditHistoryEntry, error) {
	const q = `
SELECT id, user_id, action, amount, balance_after, purchase_id, charge_id, created_at
FROM credit_history
WHERE user_id=$1 AND charge_id=$2 AND action=$3`
	e := &model.CreditHistoryEntry{}
	err := s.q.QueryRow(ctx, q, userID, chargeID, action).
		Scan(&e.ID, &e.UserID, &e.Action, &e.Amount, &e.BalanceAfter, &e.PurchaseID, &e.ChargeID, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

const purchaseColumns = `id, user_id, item_id, item_name, price, credits_granted, charge_id, is_refunded, created_at`

func (s queries) scanPurchase(row pgx.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	err := row.Scan(&p.ID, &p.UserID, &p.ItemID, &p.ItemName, &p.Price, &p.CreditsGranted, &p.ChargeID, &p.IsRefunded, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s queries) PurchaseByChargeID(ctx context.Context, chargeID string) (*model.Purchase, error) {
	return s.scanPurchase(s.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE charge_id=$1`, chargeID))
}

func (s queries) LockPurchase(ctx context.Context, chargeID string) (*model.Purchase, error) {
	return s.scanPurchase(s.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE charge_id=$1 FOR UPDATE`, chargeID))
}

func (s queries) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (id, user_id, item_id, item_name, price, credits_granted, charge_id, is_refunded, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := s.q.Exec(ctx, q, p.ID, p.UserID, p.ItemID, p.ItemName, p.Price, p.CreditsGranted, p.ChargeID, p.IsRefunded, p.CreatedAt)
	return mapErr(err)
}

func (s queries) MarkPurchaseRefunded(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `UPDATE purchases SET is_refunded=TRUE WHERE id=$1 AND NOT is_refunded`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s queries) InsertRefund(ctx context.Context, r *model.Refund) error {
	const q = `
INSERT INTO refunds (id, user_id, charge_id, purchase_id, created_at)
VALUES ($1,$2,$3,$4,$5)`
	_, err := s.q.Exec(ctx, q, r.ID, r.UserID, r.ChargeID, r.PurchaseID, r.CreatedAt)
	return mapErr(err)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
