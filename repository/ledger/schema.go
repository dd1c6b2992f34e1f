package ledgerrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             UUID PRIMARY KEY,
		telegram_id    BIGINT NOT NULL UNIQUE,
		first_name     TEXT NOT NULL DEFAULT '',
		last_name      TEXT NOT NULL DEFAULT '',
		username       TEXT NOT NULL DEFAULT '',
		credits        BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS purchases (
		id              UUID PRIMARY KEY,
		user_id         UUID NOT NULL REFERENCES users(id),
		item_id         TEXT NOT NULL,
		item_name       TEXT NOT NULL,
		price           BIGINT NOT NULL CHECK (price > 0),
		credits_granted BIGINT NOT NULL,
		charge_id       TEXT NOT NULL,
		is_refunded     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT purchases_charge_id_key UNIQUE (charge_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_created ON purchases(created_at)`,

	`CREATE TABLE IF NOT EXISTS refunds (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL REFERENCES users(id),
		charge_id   TEXT NOT NULL,
		purchase_id UUID NOT NULL REFERENCES purchases(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT refunds_charge_id_key UNIQUE (charge_id),
		CONSTRAINT refunds_purchase_id_key UNIQUE (purchase_id)
	)`,

	`CREATE TABLE IF NOT EXISTS credit_history (
		id            BIGSERIAL PRIMARY KEY,
		user_id       UUID NOT NULL REFERENCES users(id),
		action        TEXT NOT NULL,
		amount        BIGINT NOT NULL,
		balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
		purchase_id   UUID REFERENCES purchases(id),
		charge_id     TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_history_user ON credit_history(user_id, created_at, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS credit_history_charge_action_key
		ON credit_history(user_id, charge_id, action) WHERE charge_id IS NOT NULL`,
}

// Migrate creates the ledger tables. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
