package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/feeledger/internal/directory"
	"github.com/punchamoorthee/feeledger/internal/domain"
	"github.com/punchamoorthee/feeledger/internal/store"
)

// Notification is dispatched after an entry is paid or an approval is requested.
type Notification struct {
	Kind       domain.Kind   `json:"kind"`
	EntryID    string        `json:"entry_id"`
	PayerID    string        `json:"payer_id"`
	PayerName  string        `json:"payer_name"`
	PayerEmail string        `json:"payer_email"`
	Status     domain.Status `json:"status"`
	Amount     domain.Money  `json:"amount"`
	Period     domain.Period `json:"period"`
}

// Notifier delivers notifications. Failures never undo ledger writes.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// CreateEntryInput describes an onboarding entry. Nil fields take defaults:
// amount 0, the current period, recurring.
type CreateEntryInput struct {
	Kind        domain.Kind
	PayerID     string
	Amount      *domain.Money
	Period      *domain.Period
	IsRecurring *bool
	Notes       string
}

// BillingService applies caller-gated operations to both ledgers.
type BillingService struct {
	store     store.LedgerStore
	directory directory.Directory
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewBillingService(s store.LedgerStore, dir directory.Directory, notifier Notifier, logger *slog.Logger) *BillingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingService{
		store:     s,
		directory: dir,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *BillingService) WithClock(now func() time.Time) *BillingService {
	s.now = now
	return s
}

// CreateEntry opens the first pending entry for a newly onboarded payer.
func (s *BillingService) CreateEntry(ctx context.Context, caller domain.Caller, in CreateEntryInput) (*domain.Entry, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if !in.Kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	if in.PayerID == "" {
		return nil, fmt.Errorf("payer id required: %w", domain.ErrInvalidRequest)
	}
	now := s.now()
	e := &domain.Entry{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		PayerID:     in.PayerID,
		Period:      domain.PeriodOf(now),
		Status:      domain.StatusPending,
		Notes:       in.Notes,
		IsRecurring: true,
		History:     []domain.HistoryRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Amount != nil {
		if *in.Amount < 0 {
			return nil, fmt.Errorf("amount %s: %w", *in.Amount, domain.ErrInvalidAmount)
		}
		e.Amount = *in.Amount
	}
	if in.Period != nil {
		if !in.Period.Valid() {
			return nil, domain.ErrInvalidPeriod
		}
		e.Period = *in.Period
	}
	if in.IsRecurring != nil {
		e.IsRecurring = *in.IsRecurring
	}

	if _, err := s.directory.Lookup(ctx, in.Kind, in.PayerID); err != nil {
		if errors.Is(err, domain.ErrPayerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("payer lookup: %w: %w", domain.ErrUpstream, err)
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("ledger entry created",
		slog.String("kind", string(e.Kind)),
		slog.String("entry_id", e.ID),
		slog.String("payer_id", e.PayerID),
		slog.String("period", e.Period.String()),
	)
	return e, nil
}

// GetEntry returns one entry visible to the caller.
func (s *BillingService) GetEntry(ctx context.Context, caller domain.Caller, kind domain.Kind, id string) (*domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	if err := authorizeRead(caller, kind); err != nil {
		return nil, err
	}
	e, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && e.PayerID != caller.ID {
		// Other payers' entries are indistinguishable from missing ones.
		return nil, domain.ErrEntryNotFound
	}
	return e, nil
}

// ListEntries queries one ledger. Payer callers only see their own entries;
// StatusOverdue filters on the derived overdue predicate.
func (s *BillingService) ListEntries(ctx context.Context, caller domain.Caller, kind domain.Kind, f domain.Filter) ([]domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	if err := authorizeRead(caller, kind); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		f.PayerID = caller.ID
	}
	if f.Status != "" && f.Status != domain.StatusOverdue && !f.Status.ValidFor(kind) {
		return nil, fmt.Errorf("status filter %q: %w", f.Status, domain.ErrInvalidStatus)
	}

	overdueOnly := f.Status == domain.StatusOverdue
	if overdueOnly {
		f.Status = ""
	}
	entries, err := s.store.List(ctx, kind, f)
	if err != nil {
		return nil, err
	}
	if !overdueOnly {
		return entries, nil
	}
	now := s.now()
	out := entries[:0]
	for _, e := range entries {
		if e.IsOverdue(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Transition applies an admin status change to one entry.
func (s *BillingService) Transition(ctx context.Context, caller domain.Caller, kind domain.Kind, id string, status domain.Status, fields domain.TransitionFields) (*domain.Entry, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	if !status.ValidFor(kind) {
		return nil, fmt.Errorf("%s ledger does not accept status %q: %w", kind, status, domain.ErrInvalidStatus)
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.store.Update(ctx, kind, id, func(e *domain.Entry) error {
		next, err := domain.SetStatus(*e, status, fields, now)
		if err != nil {
			return err
		}
		*e = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ledger entry transitioned",
		slog.String("kind", string(kind)),
		slog.String("entry_id", id),
		slog.String("status", string(status)),
		slog.String("actor", caller.ID),
	)
	if status == domain.StatusPaid || status == domain.StatusRequested {
		s.notify(ctx, updated)
	}
	return updated, nil
}

// RequestApproval lets a student (or an admin on their behalf) claim an
// out-of-band payment on an unpaid tuition entry.
func (s *BillingService) RequestApproval(ctx context.Context, caller domain.Caller, id string, amount *domain.Money, notes *string) (*domain.Entry, error) {
	if !caller.IsAdmin() && caller.Role != domain.RoleStudent {
		return nil, domain.ErrUnauthorized
	}
	if amount != nil && *amount < 0 {
		return nil, fmt.Errorf("amount %s: %w", *amount, domain.ErrInvalidAmount)
	}

	now := s.now()
	updated, err := s.store.Update(ctx, domain.KindStudent, id, func(e *domain.Entry) error {
		if !caller.IsAdmin() && e.PayerID != caller.ID {
			return domain.ErrUnauthorized
		}
		next, err := domain.RequestApproval(*e, amount, notes, now)
		if err != nil {
			return err
		}
		*e = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval requested",
		slog.String("entry_id", id),
		slog.String("payer_id", updated.PayerID),
		slog.String("amount", updated.Amount.String()),
	)
	s.notify(ctx, updated)
	return updated, nil
}

// notify is fire-and-forget: the ledger write has already committed.
func (s *BillingService) notify(ctx context.Context, e *domain.Entry) {
	if s.notifier == nil {
		return
	}
	logger := s.logger.With(slog.String("entry_id", e.ID), slog.String("payer_id", e.PayerID))
	payer, err := s.directory.Lookup(ctx, e.Kind, e.PayerID)
	if err != nil {
		logger.Warn("notification skipped: payer lookup failed", slog.Any("error", err))
		return
	}
	n := Notification{
		Kind:       e.Kind,
		EntryID:    e.ID,
		PayerID:    e.PayerID,
		PayerName:  payer.Name,
		PayerEmail: payer.Email,
		Status:     e.Status,
		Amount:     e.Amount,
		Period:     e.Period,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		logger.Warn("notification dispatch failed", slog.Any("error", err))
	}
}

func authorizeRead(caller domain.Caller, kind domain.Kind) error {
	if caller.IsAdmin() {
		return nil
	}
	own, ok := caller.PayerKind()
	if !ok || own != kind || caller.ID == "" {
		return domain.ErrUnauthorized
	}
	return nil
}
