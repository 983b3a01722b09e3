package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/punchamoorthee/feeledger/internal/domain"
	"github.com/punchamoorthee/feeledger/internal/service"
)

// ledgerKinds maps the {ledger} path segment onto a ledger kind.
var ledgerKinds = map[string]domain.Kind{
	"payments": domain.KindStudent,
	"salaries": domain.KindTeacher,
}

type Handler struct {
	billing  *service.BillingService
	rollover *service.Rollover
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(billing *service.BillingService, rollover *service.Rollover, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		billing:  billing,
		rollover: rollover,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type createEntryRequest struct {
	PayerID     string         `json:"payer_id" validate:"required,max=64"`
	Amount      *domain.Money  `json:"amount" validate:"omitempty,min=0"`
	Period      *domain.Period `json:"period"`
	IsRecurring *bool          `json:"is_recurring"`
	Notes       string         `json:"notes" validate:"max=1000"`
}

type transitionRequest struct {
	Status        domain.Status         `json:"status" validate:"required"`
	PaymentDate   *time.Time            `json:"payment_date"`
	Amount        *domain.Money         `json:"amount" validate:"omitempty,min=0"`
	PaymentMethod *domain.PaymentMethod `json:"payment_method"`
	Notes         *string               `json:"notes" validate:"omitempty,max=1000"`
}

type approvalRequest struct {
	Amount *domain.Money `json:"amount" validate:"omitempty,min=0"`
	Notes  *string       `json:"notes" validate:"omitempty,max=1000"`
}

type manualRolloverRequest struct {
	StudentEntryIDs []string `json:"student_entry_ids" validate:"dive,required"`
	TeacherEntryIDs []string `json:"teacher_entry_ids" validate:"dive,required"`
}

// entryResponse adds the derived overdue flag to an entry.
type entryResponse struct {
	domain.Entry
	Overdue bool `json:"overdue"`
}

// WithClock overrides the clock used for the overdue flag.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) present(e domain.Entry) entryResponse {
	return entryResponse{Entry: e, Overdue: e.IsOverdue(h.now())}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateEntryHandler(w http.ResponseWriter, r *http.Request) {
	caller, kind, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req createEntryRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.billing.CreateEntry(r.Context(), caller, service.CreateEntryInput{
		Kind:        kind,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		Period:      req.Period,
		IsRecurring: req.IsRecurring,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/%s/entries/%s", mux.Vars(r)["ledger"], e.ID))
	respondJSON(w, http.StatusCreated, h.present(*e))
}

func (h *Handler) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	caller, kind, ok := h.scope(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.billing.ListEntries(r.Context(), caller, kind, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, h.present(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func (h *Handler) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	caller, kind, ok := h.scope(w, r)
	if !ok {
		return
	}
	e, err := h.billing.GetEntry(r.Context(), caller, kind, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(*e))
}

func (h *Handler) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	caller, kind, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.billing.Transition(r.Context(), caller, kind, mux.Vars(r)["id"], req.Status, domain.TransitionFields{
		PaymentDate:   req.PaymentDate,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(*e))
}

func (h *Handler) RequestApprovalHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := h.decode(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.billing.RequestApproval(r.Context(), caller, mux.Vars(r)["id"], req.Amount, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(*e))
}

func (h *Handler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	report, err := h.rollover.RunSweep(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) ManualRolloverHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req manualRolloverRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.StudentEntryIDs)+len(req.TeacherEntryIDs) == 0 {
		h.fail(w, r, fmt.Errorf("no entry ids supplied: %w", domain.ErrInvalidRequest))
		return
	}
	res, err := h.rollover.RunManualRollover(r.Context(), caller, domain.ManualRolloverRequest{
		StudentEntryIDs: req.StudentEntryIDs,
		TeacherEntryIDs: req.TeacherEntryIDs,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Helpers

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		respondError(w, domain.ErrUnauthenticated)
	}
	return c, ok
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (domain.Caller, domain.Kind, bool) {
	c, ok := h.caller(w, r)
	if !ok {
		return c, "", false
	}
	kind, ok := ledgerKinds[mux.Vars(r)["ledger"]]
	if !ok {
		respondError(w, domain.ErrInvalidKind)
		return c, "", false
	}
	return c, kind, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if err := decodeJSON(w, r, dst, optional); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "Amount" {
				return domain.ErrInvalidAmount
			}
			return fmt.Errorf("field %s failed %q validation: %w", fe.Field(), fe.Tag(), domain.ErrInvalidRequest)
		}
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidRequest)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindUpstream {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	respondError(w, err)
}

// parseFilter reads payer_id, status, month and year. Month and year must be
// supplied together; month accepts a name or a number.
func parseFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	f := domain.Filter{PayerID: q.Get("payer_id"), Status: domain.Status(q.Get("status"))}

	month, year := q.Get("month"), q.Get("year")
	if month == "" && year == "" {
		return f, nil
	}
	if month == "" || year == "" {
		return f, fmt.Errorf("month and year must be given together: %w", domain.ErrInvalidPeriod)
	}
	m, err := domain.ParseMonth(month)
	if err != nil {
		return f, err
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return f, fmt.Errorf("year %q: %w", year, domain.ErrInvalidPeriod)
	}
	p := domain.Period{Year: y, Month: m}
	if !p.Valid() {
		return f, domain.ErrInvalidPeriod
	}
	f.Period = &p
	return f, nil
}
