package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func pendingEntry(kind Kind) Entry {
	return Entry{
		ID:          "e1",
		Kind:        kind,
		PayerID:     "p1",
		Amount:      1000,
		Period:      Period{Year: 2024, Month: time.March},
		Status:      StatusPending,
		IsRecurring: true,
		History:     []HistoryRecord{},
	}
}

func TestSetStatusPaidStampsHistoryAndNextDue(t *testing.T) {
	in := pendingEntry(KindStudent)
	paidAt := day(2024, time.March, 10)

	out, err := SetStatus(in, StatusPaid, TransitionFields{
		PaymentDate:   &paidAt,
		PaymentMethod: ptr(MethodCash),
	}, day(2024, time.March, 11))
	require.NoError(t, err)

	require.Equal(t, StatusPaid, out.Status)
	require.Equal(t, paidAt, *out.PaymentDate)
	require.Equal(t, day(2024, time.April, 10), *out.NextPeriodDue)
	require.Equal(t, []HistoryRecord{{
		Status:        StatusPaid,
		Date:          paidAt,
		Amount:        1000,
		PaymentMethod: MethodCash,
	}}, out.History)
	require.Empty(t, in.History, "input entry must not be mutated")
}

func TestSetStatusPaidDefaultsDateToNow(t *testing.T) {
	now := day(2024, time.January, 31)
	out, err := SetStatus(pendingEntry(KindTeacher), StatusPaid, TransitionFields{}, now)
	require.NoError(t, err)
	require.Equal(t, now, *out.PaymentDate)
	require.Equal(t, day(2024, time.February, 29), *out.NextPeriodDue)
}

func TestSetStatusPaidNonRecurringHasNoNextDue(t *testing.T) {
	in := pendingEntry(KindTeacher)
	in.IsRecurring = false
	out, err := SetStatus(in, StatusPaid, TransitionFields{}, day(2024, time.March, 1))
	require.NoError(t, err)
	require.NotNil(t, out.PaymentDate)
	require.Nil(t, out.NextPeriodDue)
	require.Len(t, out.History, 1)
}

func TestSetStatusPaidTwiceAppendsTwoRecords(t *testing.T) {
	first, err := SetStatus(pendingEntry(KindStudent), StatusPaid, TransitionFields{PaymentMethod: ptr(MethodCash)}, day(2024, time.March, 5))
	require.NoError(t, err)
	second, err := SetStatus(first, StatusPaid, TransitionFields{PaymentMethod: ptr(MethodUPI), Amount: ptr(Money(1200))}, day(2024, time.March, 6))
	require.NoError(t, err)

	require.Len(t, first.History, 1)
	require.Len(t, second.History, 2)
	require.Equal(t, MethodCash, second.History[0].PaymentMethod)
	require.Equal(t, MethodUPI, second.History[1].PaymentMethod)
	require.Equal(t, Money(1200), second.History[1].Amount)
}

func TestSetStatusLeavingPaidClearsDates(t *testing.T) {
	paid, err := SetStatus(pendingEntry(KindStudent), StatusPaid, TransitionFields{}, day(2024, time.March, 5))
	require.NoError(t, err)

	out, err := SetStatus(paid, StatusPending, TransitionFields{Notes: ptr("reversed")}, day(2024, time.March, 7))
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)
	require.Nil(t, out.PaymentDate)
	require.Nil(t, out.NextPeriodDue)
	require.Equal(t, "reversed", out.Notes)
	require.Len(t, out.History, 1)
}

func TestSetStatusRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		status Status
		fields TransitionFields
		want   error
	}{
		{"unknown status", KindStudent, Status("cancelled"), TransitionFields{}, ErrInvalidStatus},
		{"overdue is derived", KindStudent, StatusOverdue, TransitionFields{}, ErrInvalidStatus},
		{"teacher cannot be requested", KindTeacher, StatusRequested, TransitionFields{}, ErrInvalidStatus},
		{"negative amount", KindTeacher, StatusPaid, TransitionFields{Amount: ptr(Money(-1))}, ErrInvalidAmount},
		{"bad method", KindStudent, StatusPaid, TransitionFields{PaymentMethod: ptr(PaymentMethod("bitcoin"))}, ErrInvalidPaymentMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := pendingEntry(tc.kind)
			out, err := SetStatus(in, tc.status, tc.fields, day(2024, time.March, 1))
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			require.Equal(t, in, out)
		})
	}
}

func TestRequestApproval(t *testing.T) {
	now := day(2024, time.March, 12)
	out, err := RequestApproval(pendingEntry(KindStudent), ptr(Money(900)), ptr("paid at desk"), now)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, out.Status)
	require.Equal(t, Money(900), out.Amount)
	require.Nil(t, out.PaymentDate)
	require.Equal(t, []HistoryRecord{{Status: StatusRequested, Date: now, Amount: 900, Notes: "paid at desk"}}, out.History)
}

func TestRequestApprovalOnPaidEntryFails(t *testing.T) {
	paid, err := SetStatus(pendingEntry(KindStudent), StatusPaid, TransitionFields{}, day(2024, time.March, 5))
	require.NoError(t, err)

	out, err := RequestApproval(paid, nil, nil, day(2024, time.March, 6))
	require.ErrorIs(t, err, ErrAlreadyPaid)
	require.Len(t, out.History, len(paid.History))
	require.Equal(t, paid, out)
}

func TestRequestApprovalRejects(t *testing.T) {
	_, err := RequestApproval(pendingEntry(KindTeacher), nil, nil, day(2024, time.March, 6))
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = RequestApproval(pendingEntry(KindStudent), ptr(Money(-5)), nil, day(2024, time.March, 6))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSuccessorStartsPending(t *testing.T) {
	paid, err := SetStatus(pendingEntry(KindStudent), StatusPaid, TransitionFields{PaymentMethod: ptr(MethodBank)}, day(2024, time.March, 10))
	require.NoError(t, err)

	next := Successor(paid, "e2", Period{Year: 2024, Month: time.April}, day(2024, time.April, 15))
	require.Equal(t, StatusPending, next.Status)
	require.Equal(t, Money(1000), next.Amount)
	require.True(t, next.IsRecurring)
	require.Nil(t, next.PaymentDate)
	require.Nil(t, next.NextPeriodDue)
	require.Equal(t, MethodNone, next.PaymentMethod)
	require.Empty(t, next.History)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindConflict, KindOf(ErrAlreadyPaid))
	require.Equal(t, KindInvalidInput, KindOf(ErrInvalidPeriod))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, "invalid_amount", CodeOf(ErrInvalidAmount))
}
