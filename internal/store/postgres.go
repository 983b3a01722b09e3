package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

const entryColumns = `id::text, payer_id, amount, period_year, period_month, status, payment_date,
	payment_method, notes, is_recurring, next_period_due, history, created_at, updated_at`

// PostgresStore is the pgx-backed LedgerStore.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and verifies it is reachable.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Pool.Close()
}

// Insert adds a new entry. The (payer_id, period) unique constraint is the
// authority on duplicates; a violation is reported as ErrDuplicatePeriod.
func (s *PostgresStore) Insert(ctx context.Context, e *domain.Entry) error {
	table, err := TableFor(e.Kind)
	if err != nil {
		return err
	}
	history, err := json.Marshal(nonNilHistory(e.History))
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, payer_id, amount, period_year, period_month, status, payment_date, payment_method,
		 notes, is_recurring, next_period_due, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, table),
		e.ID, e.PayerID, int64(e.Amount), e.Period.Year, int(e.Period.Month), string(e.Status), e.PaymentDate,
		string(e.PaymentMethod), e.Notes, e.IsRecurring, e.NextPeriodDue, history, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrDuplicatePeriod)
		}
		return fmt.Errorf("insert %s entry: %w", e.Kind, err)
	}
	return nil
}

// Get retrieves a single entry by id.
func (s *PostgresStore) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entry, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEntryNotFound
	}
	row := s.Pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", entryColumns, table), id)
	return scanEntry(kind, row)
}

// FindByPeriod retrieves the entry a payer holds for one period.
func (s *PostgresStore) FindByPeriod(ctx context.Context, kind domain.Kind, payerID string, p domain.Period) (*domain.Entry, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	row := s.Pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE payer_id = $1 AND period_year = $2 AND period_month = $3", entryColumns, table),
		payerID, p.Year, int(p.Month))
	return scanEntry(kind, row)
}

// List retrieves entries matching f, newest period first.
func (s *PostgresStore) List(ctx context.Context, kind domain.Kind, f domain.Filter) ([]domain.Entry, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.PayerID != "" {
		args = append(args, f.PayerID)
		where = append(where, fmt.Sprintf("payer_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Period != nil {
		args = append(args, f.Period.Year, int(f.Period.Month))
		where = append(where, fmt.Sprintf("period_year = $%d AND period_month = $%d", len(args)-1, len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", entryColumns, table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period_year DESC, period_month DESC, created_at DESC"
	return s.queryEntries(ctx, kind, query, args...)
}

// ListDue retrieves, per payer, the latest paid recurring entry whose next
// period is due.
func (s *PostgresStore) ListDue(ctx context.Context, kind domain.Kind, asOf time.Time) ([]domain.Entry, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT DISTINCT ON (payer_id) %s FROM %s
		WHERE status = 'paid' AND is_recurring AND next_period_due <= $1
		ORDER BY payer_id, period_year DESC, period_month DESC`, entryColumns, table)
	return s.queryEntries(ctx, kind, query, asOf)
}

// Update performs a locked read-modify-write of one entry.
func (s *PostgresStore) Update(ctx context.Context, kind domain.Kind, id string, fn func(*domain.Entry) error) (*domain.Entry, error) {
	table, err := TableFor(kind)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEntryNotFound
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR UPDATE", entryColumns, table), id)
	e, err := scanEntry(kind, row)
	if err != nil {
		return nil, err
	}
	payerID, period := e.PayerID, e.Period
	if err := fn(e); err != nil {
		return nil, err
	}
	e.ID, e.Kind, e.PayerID, e.Period = id, kind, payerID, period

	history, err := json.Marshal(nonNilHistory(e.History))
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET amount = $2, status = $3, payment_date = $4,
		payment_method = $5, notes = $6, is_recurring = $7, next_period_due = $8, history = $9, updated_at = $10
		WHERE id = $1`, table),
		id, int64(e.Amount), string(e.Status), e.PaymentDate, string(e.PaymentMethod), e.Notes,
		e.IsRecurring, e.NextPeriodDue, history, e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s entry: %w", kind, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) queryEntries(ctx context.Context, kind domain.Kind, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		e, err := scanEntry(kind, rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(kind domain.Kind, row pgx.Row) (*domain.Entry, error) {
	var (
		e       domain.Entry
		month   int
		status  string
		amount  int64
		method  string
		history []byte
	)
	err := row.Scan(&e.ID, &e.PayerID, &amount, &e.Period.Year, &month, &status, &e.PaymentDate,
		&method, &e.Notes, &e.IsRecurring, &e.NextPeriodDue, &history, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	e.Kind = kind
	e.Amount = domain.Money(amount)
	e.Period.Month = time.Month(month)
	e.Status = domain.Status(status)
	e.PaymentMethod = domain.PaymentMethod(method)
	if err := json.Unmarshal(history, &e.History); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", e.ID, err)
	}
	e.History = nonNilHistory(e.History)
	return &e, nil
}

func nonNilHistory(h []domain.HistoryRecord) []domain.HistoryRecord {
	if h == nil {
		return []domain.HistoryRecord{}
	}
	return h
}
