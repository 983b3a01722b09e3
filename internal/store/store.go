package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

// LedgerStore persists ledger entries, one collection per ledger kind.
// Implementations must reject a second entry for the same (payer, period)
// in a kind with domain.ErrDuplicatePeriod.
type LedgerStore interface {
	Insert(ctx context.Context, e *domain.Entry) error
	Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entry, error)
	FindByPeriod(ctx context.Context, kind domain.Kind, payerID string, p domain.Period) (*domain.Entry, error)
	List(ctx context.Context, kind domain.Kind, f domain.Filter) ([]domain.Entry, error)
	// ListDue returns, per payer, the latest paid recurring entry whose next
	// period is due at asOf.
	ListDue(ctx context.Context, kind domain.Kind, asOf time.Time) ([]domain.Entry, error)
	// Update loads one entry, applies fn and persists the result atomically.
	// An error from fn aborts without writing.
	Update(ctx context.Context, kind domain.Kind, id string, fn func(*domain.Entry) error) (*domain.Entry, error)
}

var tables = map[domain.Kind]string{
	domain.KindStudent: "student_payments",
	domain.KindTeacher: "teacher_salaries",
}

func TableFor(kind domain.Kind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", domain.ErrInvalidKind
	}
	return t, nil
}
