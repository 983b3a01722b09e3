package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/feeledger/internal/domain"
	"github.com/punchamoorthee/feeledger/internal/store"
)

// RolloverObserver receives one callback per processed candidate.
type RolloverObserver interface {
	Observe(kind domain.Kind, outcome string)
}

// Candidate outcomes reported to the observer.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Rollover creates successor entries for paid recurring entries, either by
// sweeping both ledgers or for an explicit id list. Both paths share
// rollForward, whose existence check plus the store's uniqueness constraint
// make repeated or concurrent runs safe.
type Rollover struct {
	store       store.LedgerStore
	logger      *slog.Logger
	observer    RolloverObserver
	concurrency int
	now         func() time.Time
}

func NewRollover(s store.LedgerStore, logger *slog.Logger, concurrency int) *Rollover {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Rollover{
		store:       s,
		logger:      logger,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the rollover clock.
func (r *Rollover) WithClock(now func() time.Time) *Rollover {
	r.now = now
	return r
}

// WithObserver attaches per-candidate instrumentation.
func (r *Rollover) WithObserver(o RolloverObserver) *Rollover {
	r.observer = o
	return r
}

// errAlreadyRolled marks a candidate whose successor already exists.
var errAlreadyRolled = errors.New("successor already exists")

// rollForward inserts prev's successor for period p unless one exists. The
// lookup immediately before the insert avoids constraint churn; the store's
// uniqueness constraint settles real races, reported as errAlreadyRolled.
func (r *Rollover) rollForward(ctx context.Context, prev domain.Entry, p domain.Period, now time.Time) (*domain.Entry, error) {
	_, err := r.store.FindByPeriod(ctx, prev.Kind, prev.PayerID, p)
	switch {
	case err == nil:
		return nil, errAlreadyRolled
	case !errors.Is(err, domain.ErrEntryNotFound):
		return nil, fmt.Errorf("check successor: %w", err)
	}

	next := domain.Successor(prev, uuid.NewString(), p, now)
	if err := r.store.Insert(ctx, &next); err != nil {
		if errors.Is(err, domain.ErrDuplicatePeriod) {
			return nil, errAlreadyRolled
		}
		return nil, fmt.Errorf("insert successor: %w", err)
	}
	return &next, nil
}

// RunSweep rolls every due recurring entry of both ledgers into the current
// period. Ledgers are swept in parallel and candidates are independent: one
// failure is reported without affecting the others.
func (r *Rollover) RunSweep(ctx context.Context, caller domain.Caller) (*domain.SweepReport, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	now := r.now()
	target := domain.PeriodOf(now)

	var report domain.SweepReport
	var g errgroup.Group
	g.Go(func() error {
		report.StudentPayments = r.sweepKind(ctx, domain.KindStudent, target, now)
		return nil
	})
	g.Go(func() error {
		report.TeacherSalaries = r.sweepKind(ctx, domain.KindTeacher, target, now)
		return nil
	})
	_ = g.Wait()
	r.logger.Info("rollover sweep finished",
		slog.String("period", target.String()),
		slog.Int("student_created", report.StudentPayments.Count),
		slog.Int("student_failed", len(report.StudentPayments.Failures)),
		slog.Int("teacher_created", report.TeacherSalaries.Count),
		slog.Int("teacher_failed", len(report.TeacherSalaries.Failures)),
	)
	return &report, nil
}

// sweepKind never fails as a whole: a listing error is reported as the
// ledger's only failure so the other ledger's result still stands.
func (r *Rollover) sweepKind(ctx context.Context, kind domain.Kind, target domain.Period, now time.Time) domain.SweepResult {
	res := domain.SweepResult{Details: []domain.SweepDetail{}}
	due, err := r.store.ListDue(ctx, kind, now)
	if err != nil {
		r.logger.Error("rollover listing failed", slog.String("kind", string(kind)), slog.Any("error", err))
		res.Failures = append(res.Failures, domain.RolloverFailure{Error: fmt.Sprintf("list due %s entries: %v", kind, err)})
		return res
	}
	candidates := latestPerPayer(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			next, err := r.rollForward(ctx, c, target, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errAlreadyRolled):
				res.Skipped++
				r.observe(kind, OutcomeSkipped)
			case err != nil:
				res.Failures = append(res.Failures, domain.RolloverFailure{EntryID: c.ID, PayerID: c.PayerID, Error: err.Error()})
				r.observe(kind, OutcomeFailed)
				r.logger.Error("rollover candidate failed",
					slog.String("kind", string(kind)),
					slog.String("entry_id", c.ID),
					slog.Any("error", err),
				)
			default:
				res.Details = append(res.Details, domain.SweepDetail{
					PayerID:         c.PayerID,
					PreviousEntryID: c.ID,
					NewEntryID:      next.ID,
					PreviousPeriod:  c.Period,
					NewPeriod:       next.Period,
				})
				r.observe(kind, OutcomeCreated)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Details, func(i, j int) bool { return res.Details[i].PayerID < res.Details[j].PayerID })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].EntryID < res.Failures[j].EntryID })
	res.Count = len(res.Details)
	return res
}

// latestPerPayer keeps the most recent period per payer so a payer with
// several historic due entries is rolled once, from its latest amount.
func latestPerPayer(entries []domain.Entry) []domain.Entry {
	latest := make(map[string]domain.Entry, len(entries))
	order := []string{}
	for _, e := range entries {
		cur, ok := latest[e.PayerID]
		if !ok {
			order = append(order, e.PayerID)
		}
		if !ok || cur.Period.Before(e.Period) {
			latest[e.PayerID] = e
		}
	}
	out := make([]domain.Entry, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}

// RunManualRollover rolls the listed entries into the current period.
// Unpaid entries are skipped; unknown ids are reported as failures.
func (r *Rollover) RunManualRollover(ctx context.Context, caller domain.Caller, req domain.ManualRolloverRequest) (*domain.ManualRolloverResult, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	now := r.now()
	target := domain.PeriodOf(now)
	out := &domain.ManualRolloverResult{Payments: []domain.RolledEntry{}, Salaries: []domain.RolledEntry{}}

	run := func(kind domain.Kind, ids []string) []domain.RolledEntry {
		rolled := []domain.RolledEntry{}
		for _, id := range ids {
			e, err := r.store.Get(ctx, kind, id)
			if err != nil {
				out.Failures = append(out.Failures, domain.RolloverFailure{EntryID: id, Error: err.Error()})
				r.observe(kind, OutcomeFailed)
				continue
			}
			if e.Status != domain.StatusPaid {
				r.observe(kind, OutcomeSkipped)
				continue
			}
			next, err := r.rollForward(ctx, *e, target, now)
			switch {
			case errors.Is(err, errAlreadyRolled):
				r.observe(kind, OutcomeSkipped)
			case err != nil:
				out.Failures = append(out.Failures, domain.RolloverFailure{EntryID: id, PayerID: e.PayerID, Error: err.Error()})
				r.observe(kind, OutcomeFailed)
			default:
				rolled = append(rolled, domain.RolledEntry{OriginalID: id, NewID: next.ID})
				r.observe(kind, OutcomeCreated)
			}
		}
		return rolled
	}
	out.Payments = run(domain.KindStudent, req.StudentEntryIDs)
	out.Salaries = run(domain.KindTeacher, req.TeacherEntryIDs)

	r.logger.Info("manual rollover finished",
		slog.String("actor", caller.ID),
		slog.Int("payments", len(out.Payments)),
		slog.Int("salaries", len(out.Salaries)),
		slog.Int("failed", len(out.Failures)),
	)
	return out, nil
}

func (r *Rollover) observe(kind domain.Kind, outcome string) {
	if r.observer != nil {
		r.observer.Observe(kind, outcome)
	}
}
