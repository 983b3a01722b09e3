package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

// Directory tables are owned by the wider portal; they are created here only
// so a fresh database can be seeded and run standalone.
const directorySchema = `
CREATE TABLE IF NOT EXISTS students (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS teachers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id              UUID PRIMARY KEY,
	payer_id        TEXT NOT NULL,
	amount          BIGINT NOT NULL CHECK (amount >= 0),
	period_year     INT NOT NULL,
	period_month    INT NOT NULL CHECK (period_month BETWEEN 1 AND 12),
	status          TEXT NOT NULL,
	payment_date    TIMESTAMPTZ,
	payment_method  TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	is_recurring    BOOLEAN NOT NULL DEFAULT TRUE,
	next_period_due TIMESTAMPTZ,
	history         JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT %[1]s_payer_period_key UNIQUE (payer_id, period_year, period_month),
	CONSTRAINT %[1]s_paid_dates CHECK ((status = 'paid') OR (payment_date IS NULL AND next_period_due IS NULL))
);
CREATE INDEX IF NOT EXISTS %[1]s_due_idx ON %[1]s (next_period_due) WHERE status = 'paid' AND is_recurring;
CREATE INDEX IF NOT EXISTS %[1]s_status_idx ON %[1]s (status);`

// Migrate creates the ledger schema. It is run once at process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, directorySchema); err != nil {
		return fmt.Errorf("directory schema: %w", err)
	}
	for _, kind := range domain.Kinds {
		table := tables[kind]
		if _, err := pool.Exec(ctx, fmt.Sprintf(ledgerSchema, table)); err != nil {
			return fmt.Errorf("%s schema: %w", table, err)
		}
	}
	return nil
}
