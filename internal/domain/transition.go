package domain

import (
	"fmt"
	"time"
)

// TransitionFields carries the optional values supplied with a status change.
// Nil fields leave the entry untouched.
type TransitionFields struct {
	PaymentDate   *time.Time
	Amount        *Money
	PaymentMethod *PaymentMethod
	Notes         *string
}

// Validate checks the supplied fields without reference to an entry.
func (f TransitionFields) Validate() error {
	if f.Amount != nil && *f.Amount < 0 {
		return fmt.Errorf("amount %s: %w", *f.Amount, ErrInvalidAmount)
	}
	if f.PaymentMethod != nil && !f.PaymentMethod.Valid() {
		return fmt.Errorf("payment method %q: %w", *f.PaymentMethod, ErrInvalidPaymentMethod)
	}
	return nil
}

// SetStatus applies a status change to a copy of entry and returns it.
//
// Moving into paid stamps the payment date (now when not supplied), appends
// exactly one history record and, for recurring entries, sets NextPeriodDue
// one calendar month after the payment date. Any other status overwrites the
// supplied fields and clears the paid-only dates.
func SetStatus(entry Entry, status Status, f TransitionFields, now time.Time) (Entry, error) {
	if !status.ValidFor(entry.Kind) {
		return entry, fmt.Errorf("%s ledger does not accept status %q: %w", entry.Kind, status, ErrInvalidStatus)
	}
	if err := f.Validate(); err != nil {
		return entry, err
	}

	out := entry.Clone()
	if f.Amount != nil {
		out.Amount = *f.Amount
	}
	if f.PaymentMethod != nil {
		out.PaymentMethod = *f.PaymentMethod
	}
	if f.Notes != nil {
		out.Notes = *f.Notes
	}
	out.Status = status
	out.UpdatedAt = now

	if status != StatusPaid {
		out.PaymentDate = nil
		out.NextPeriodDue = nil
		return out, nil
	}

	paidAt := now
	if f.PaymentDate != nil {
		paidAt = *f.PaymentDate
	}
	out.PaymentDate = &paidAt
	out.NextPeriodDue = nil
	if out.IsRecurring {
		due := AddMonthClamped(paidAt)
		out.NextPeriodDue = &due
	}
	out.History = append(out.History, HistoryRecord{
		Status:        StatusPaid,
		Date:          paidAt,
		Amount:        out.Amount,
		PaymentMethod: out.PaymentMethod,
		Notes:         out.Notes,
	})
	return out, nil
}

// RequestApproval records a payer's claim that an unpaid student entry was
// settled out of band.
func RequestApproval(entry Entry, amount *Money, notes *string, now time.Time) (Entry, error) {
	if entry.Kind != KindStudent {
		return entry, fmt.Errorf("approval requests are student-only: %w", ErrInvalidStatus)
	}
	if entry.Status == StatusPaid {
		return entry, ErrAlreadyPaid
	}
	if amount != nil && *amount < 0 {
		return entry, fmt.Errorf("amount %s: %w", *amount, ErrInvalidAmount)
	}

	out := entry.Clone()
	if amount != nil {
		out.Amount = *amount
	}
	if notes != nil {
		out.Notes = *notes
	}
	out.Status = StatusRequested
	out.PaymentDate = nil
	out.NextPeriodDue = nil
	out.UpdatedAt = now
	out.History = append(out.History, HistoryRecord{
		Status:        StatusRequested,
		Date:          now,
		Amount:        out.Amount,
		PaymentMethod: out.PaymentMethod,
		Notes:         out.Notes,
	})
	return out, nil
}

// Successor builds the pending entry that follows prev in period p.
func Successor(prev Entry, id string, p Period, now time.Time) Entry {
	return Entry{
		ID:          id,
		Kind:        prev.Kind,
		PayerID:     prev.PayerID,
		Amount:      prev.Amount,
		Period:      p,
		Status:      StatusPending,
		IsRecurring: prev.IsRecurring,
		History:     []HistoryRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
