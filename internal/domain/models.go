package domain

import (
	"slices"
	"time"
)

// Kind identifies which ledger an entry belongs to.
type Kind string

const (
	KindStudent Kind = "student"
	KindTeacher Kind = "teacher"
)

// Kinds lists every ledger kind in sweep order.
var Kinds = []Kind{KindStudent, KindTeacher}

// Valid reports whether k names a known ledger.
func (k Kind) Valid() bool {
	return k == KindStudent || k == KindTeacher
}

// Status is the billing state of a single entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRequested Status = "requested"
	StatusPaid      Status = "paid"
	// StatusOverdue is derived from the period and never stored.
	StatusOverdue Status = "overdue"
)

// AllowedStatuses returns the statuses an entry of kind k may be moved into.
func AllowedStatuses(k Kind) []Status {
	if k == KindStudent {
		return []Status{StatusPending, StatusRequested, StatusPaid}
	}
	return []Status{StatusPending, StatusPaid}
}

// ValidFor reports whether s is a status entries of kind k can hold.
func (s Status) ValidFor(k Kind) bool {
	return slices.Contains(AllowedStatuses(k), s)
}

// PaymentMethod records how out-of-band funds were collected.
type PaymentMethod string

const (
	MethodNone   PaymentMethod = ""
	MethodCash   PaymentMethod = "cash"
	MethodBank   PaymentMethod = "bank"
	MethodUPI    PaymentMethod = "upi"
	MethodCheque PaymentMethod = "cheque"
	MethodCard   PaymentMethod = "card"
)

// Valid reports whether m is empty or one of the enumerated methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodNone, MethodCash, MethodBank, MethodUPI, MethodCheque, MethodCard:
		return true
	}
	return false
}

// HistoryRecord is an immutable snapshot appended on payment or approval request.
type HistoryRecord struct {
	Status        Status        `json:"status"`
	Date          time.Time     `json:"date"`
	Amount        Money         `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

// Entry is one billing period's record for one payer.
// PaymentDate and NextPeriodDue are nil unless Status is StatusPaid.
type Entry struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	PayerID       string          `json:"payer_id"`
	Amount        Money           `json:"amount"`
	Period        Period          `json:"period"`
	Status        Status          `json:"status"`
	PaymentDate   *time.Time      `json:"payment_date"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	IsRecurring   bool            `json:"is_recurring"`
	NextPeriodDue *time.Time      `json:"next_period_due"`
	History       []HistoryRecord `json:"history"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsOverdue reports whether an unpaid entry's period has already ended.
func (e Entry) IsOverdue(now time.Time) bool {
	if e.Status == StatusPaid {
		return false
	}
	return !now.Before(e.Period.End())
}

// Clone returns a deep copy that shares no mutable state with e.
func (e Entry) Clone() Entry {
	out := e
	out.History = slices.Clone(e.History)
	if e.PaymentDate != nil {
		d := *e.PaymentDate
		out.PaymentDate = &d
	}
	if e.NextPeriodDue != nil {
		d := *e.NextPeriodDue
		out.NextPeriodDue = &d
	}
	return out
}

// Filter narrows ledger listings. Zero fields match everything.
type Filter struct {
	PayerID string
	Status  Status
	Period  *Period
}

// Role is the caller's authorization role as resolved by authentication.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	// RoleSystem is used by scheduled jobs.
	RoleSystem Role = "system"
)

// Caller is the authenticated identity making a request.
type Caller struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the caller may act on any entry of either ledger.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin || c.Role == RoleSystem
}

// PayerKind maps a payer role onto the ledger that bills it.
func (c Caller) PayerKind() (Kind, bool) {
	switch c.Role {
	case RoleStudent:
		return KindStudent, true
	case RoleTeacher:
		return KindTeacher, true
	}
	return "", false
}

// SweepDetail describes one successor entry created by a rollover.
type SweepDetail struct {
	PayerID         string `json:"payer_id"`
	PreviousEntryID string `json:"previous_entry_id"`
	NewEntryID      string `json:"new_entry_id"`
	PreviousPeriod  Period `json:"previous_period"`
	NewPeriod       Period `json:"new_period"`
}

// RolloverFailure is a candidate that could not be processed.
type RolloverFailure struct {
	EntryID string `json:"entry_id"`
	PayerID string `json:"payer_id,omitempty"`
	Error   string `json:"error"`
}

// SweepResult summarises one ledger's sweep. Count is informational only.
type SweepResult struct {
	Count    int               `json:"count"`
	Details  []SweepDetail     `json:"details"`
	Skipped  int               `json:"skipped"`
	Failures []RolloverFailure `json:"failures,omitempty"`
}

// SweepReport is the outcome of a sweep across both ledgers.
type SweepReport struct {
	StudentPayments SweepResult `json:"student_payments"`
	TeacherSalaries SweepResult `json:"teacher_salaries"`
}

// ManualRolloverRequest names the entries an admin wants rolled forward.
type ManualRolloverRequest struct {
	StudentEntryIDs []string `json:"student_entry_ids"`
	TeacherEntryIDs []string `json:"teacher_entry_ids"`
}

// RolledEntry pairs a rolled entry with its successor.
type RolledEntry struct {
	OriginalID string `json:"original_id"`
	NewID      string `json:"new_id"`
}

// ManualRolloverResult is the outcome of a manual rollover.
type ManualRolloverResult struct {
	Payments []RolledEntry     `json:"payments"`
	Salaries []RolledEntry     `json:"salaries"`
	Failures []RolloverFailure `json:"failures,omitempty"`
}
