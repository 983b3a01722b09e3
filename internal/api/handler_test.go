package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/feeledger/internal/directory"
	"github.com/punchamoorthee/feeledger/internal/domain"
	"github.com/punchamoorthee/feeledger/internal/service"
	"github.com/punchamoorthee/feeledger/internal/store"
)

const testSecret = "test-secret"

var (
	billingNow  = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	rolloverNow = time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)
)

type testServer struct {
	t      *testing.T
	router http.Handler
	auth   *Authenticator
}

type entryJSON struct {
	ID            string       `json:"id"`
	PayerID       string       `json:"payer_id"`
	Status        string       `json:"status"`
	Amount        domain.Money `json:"amount"`
	Overdue       bool         `json:"overdue"`
	NextPeriodDue *time.Time   `json:"next_period_due"`
	Period        struct {
		Year      int    `json:"year"`
		Month     int    `json:"month"`
		MonthName string `json:"month_name"`
	} `json:"period"`
	History []map[string]any `json:"history"`
}

type errorJSON struct {
	Error errorBody `json:"error"`
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	s := store.NewMemoryStore()
	dir := directory.StaticDirectory{}
	dir.Add(directory.Payer{ID: "stu-1", Kind: domain.KindStudent, Name: "Asha"})
	dir.Add(directory.Payer{ID: "stu-2", Kind: domain.KindStudent, Name: "Ravi"})
	dir.Add(directory.Payer{ID: "tch-1", Kind: domain.KindTeacher, Name: "Meena"})

	billing := service.NewBillingService(s, dir, nil, nil).WithClock(func() time.Time { return billingNow })
	rollover := service.NewRollover(s, nil, 2).WithClock(func() time.Time { return rolloverNow })
	h := NewHandler(billing, rollover, nil).WithClock(func() time.Time { return billingNow })
	auth := NewAuthenticator(testSecret)
	return &testServer{
		t:      t,
		router: NewRouter(RouterConfig{Handler: h, Auth: auth, RateLimit: rateLimit}),
		auth:   auth,
	}
}

func (ts *testServer) token(sub string, role domain.Role) string {
	ts.t.Helper()
	tok, err := ts.auth.Issue(sub, role, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeEntry(t *testing.T, rr *httptest.ResponseRecorder) entryJSON {
	t.Helper()
	var e entryJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e), rr.Body.String())
	return e
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e), rr.Body.String())
	return e.Error
}

func (ts *testServer) createPayment(payer, body string) entryJSON {
	ts.t.Helper()
	if body == "" {
		body = `{"payer_id":"` + payer + `","amount":1000}`
	}
	rr := ts.do(http.MethodPost, "/api/v1/payments/entries", ts.token("admin", domain.RoleAdmin), body)
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeEntry(ts.t, rr)
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, 0)
	rr := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, 0)
	expired := NewAuthenticator(testSecret)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue("admin", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)
	forged, err := NewAuthenticator("other-secret").Issue("admin", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
		{"expired", stale},
		{"no expiry", noExpiry},
		{"system role", ts.token("cron", domain.RoleSystem)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/v1/rollover/sweep", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, domain.KindUnauthenticated, decodeError(t, rr).Kind)
		})
	}
}

func TestCreateAndGetEntry(t *testing.T) {
	ts := newTestServer(t, 0)
	rr := ts.do(http.MethodPost, "/api/v1/payments/entries", ts.token("admin", domain.RoleAdmin),
		`{"payer_id":"stu-1","amount":1500,"period":{"year":2024,"month":"March"}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeEntry(t, rr)
	assert.Equal(t, "/api/v1/payments/entries/"+created.ID, rr.Header().Get("Location"))
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 3, created.Period.Month)
	assert.Equal(t, "March", created.Period.MonthName)
	assert.False(t, created.Overdue)
	assert.NotNil(t, created.History)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries/"+created.ID, ts.token("stu-1", domain.RoleStudent), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.Money(150000), decodeEntry(t, rr).Amount)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries/"+created.ID, ts.token("stu-2", domain.RoleStudent), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodGet, "/api/v1/salaries/entries/"+created.ID, ts.token("tch-1", domain.RoleTeacher), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateEntryErrors(t *testing.T) {
	ts := newTestServer(t, 0)
	admin := ts.token("admin", domain.RoleAdmin)
	ts.createPayment("stu-1", "")

	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"duplicate period", admin, `{"payer_id":"stu-1"}`, http.StatusConflict, "duplicate_period"},
		{"non-numeric amount", admin, `{"payer_id":"stu-2","amount":"abc"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"negative amount", admin, `{"payer_id":"stu-2","amount":-5}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"bad month", admin, `{"payer_id":"stu-2","period":{"year":2024,"month":13}}`, http.StatusUnprocessableEntity, "invalid_period"},
		{"missing payer", admin, `{"amount":10}`, http.StatusUnprocessableEntity, "invalid_request"},
		{"malformed json", admin, `{"payer_id":`, http.StatusBadRequest, "malformed_json"},
		{"trailing data", admin, `{"payer_id":"stu-2"} garbage`, http.StatusBadRequest, "malformed_json"},
		{"second value", admin, `{"payer_id":"stu-2"}{"payer_id":"stu-2"}`, http.StatusBadRequest, "malformed_json"},
		{"unknown payer", admin, `{"payer_id":"ghost"}`, http.StatusNotFound, "payer_not_found"},
		{"not admin", ts.token("stu-2", domain.RoleStudent), `{"payer_id":"stu-2"}`, http.StatusForbidden, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/v1/payments/entries", tt.token, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}
}

func TestUnknownLedgerIsNotRouted(t *testing.T) {
	ts := newTestServer(t, 0)
	rr := ts.do(http.MethodGet, "/api/v1/vendors/entries", ts.token("admin", domain.RoleAdmin), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTransition(t *testing.T) {
	ts := newTestServer(t, 0)
	admin := ts.token("admin", domain.RoleAdmin)
	e := ts.createPayment("stu-1", "")
	path := "/api/v1/payments/entries/" + e.ID + "/transition"

	rr := ts.do(http.MethodPost, path, admin, `{"status":"paid","payment_date":"2024-01-31T10:00:00Z","payment_method":"upi"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	paid := decodeEntry(t, rr)
	assert.Equal(t, "paid", paid.Status)
	require.NotNil(t, paid.NextPeriodDue)
	assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), paid.NextPeriodDue.UTC())
	assert.Len(t, paid.History, 1)

	for _, status := range []string{"cancelled", "overdue"} {
		rr = ts.do(http.MethodPost, path, admin, `{"status":"`+status+`"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "invalid_status", decodeError(t, rr).Code)
	}

	rr = ts.do(http.MethodPost, path, admin, `{"status":"paid","payment_method":"barter"}`)
	assert.Equal(t, "invalid_payment_method", decodeError(t, rr).Code)

	rr = ts.do(http.MethodPost, path, ts.token("stu-1", domain.RoleStudent), `{"status":"paid"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, "/api/v1/payments/entries/missing/transition", admin, `{"status":"paid"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPost, "/api/v1/salaries/entries/"+e.ID+"/transition", admin, `{"status":"requested"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestFractionalAmounts(t *testing.T) {
	ts := newTestServer(t, 0)
	admin := ts.token("admin", domain.RoleAdmin)
	e := ts.createPayment("stu-1", `{"payer_id":"stu-1","amount":1000.5}`)
	assert.Equal(t, domain.Money(100050), e.Amount)

	rr := ts.do(http.MethodPost, "/api/v1/payments/entries/"+e.ID+"/transition", admin, `{"status":"paid","amount":1499.50}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"amount":1499.50`)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries/"+e.ID, admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	paid := decodeEntry(t, rr)
	assert.Equal(t, domain.Money(149950), paid.Amount)
	require.Len(t, paid.History, 1)
	assert.Equal(t, 1499.5, paid.History[0]["amount"])
}

func TestRequestApprovalEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	e := ts.createPayment("stu-1", "")
	path := "/api/v1/payments/entries/" + e.ID + "/request-approval"
	stu := ts.token("stu-1", domain.RoleStudent)

	rr := ts.do(http.MethodPost, path, ts.token("stu-2", domain.RoleStudent), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(http.MethodPost, path, stu, `{"amount":900,"notes":"cash at office"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decodeEntry(t, rr)
	assert.Equal(t, "requested", got.Status)
	assert.Equal(t, domain.Money(90000), got.Amount)

	rr = ts.do(http.MethodPost, "/api/v1/payments/entries/"+e.ID+"/transition", ts.token("admin", domain.RoleAdmin), `{"status":"paid"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodPost, path, stu, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "already_paid", decodeError(t, rr).Code)
}

func TestListEntries(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.createPayment("stu-1", `{"payer_id":"stu-1","period":{"year":2024,"month":2}}`)
	ts.createPayment("stu-1", "")
	ts.createPayment("stu-2", "")
	admin := ts.token("admin", domain.RoleAdmin)

	var list struct {
		Entries []entryJSON `json:"entries"`
		Count   int         `json:"count"`
	}
	rr := ts.do(http.MethodGet, "/api/v1/payments/entries?month=march&year=2024", admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries?status=overdue", admin, "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.True(t, list.Entries[0].Overdue)
	assert.Equal(t, "pending", list.Entries[0].Status)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries", ts.token("stu-2", domain.RoleStudent), "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "stu-2", list.Entries[0].PayerID)

	rr = ts.do(http.MethodGet, "/api/v1/payments/entries?month=3", admin, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "invalid_period", decodeError(t, rr).Code)
}

func TestRolloverEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)
	admin := ts.token("admin", domain.RoleAdmin)
	e := ts.createPayment("stu-1", "")
	rr := ts.do(http.MethodPost, "/api/v1/payments/entries/"+e.ID+"/transition", admin,
		`{"status":"paid","payment_date":"2024-03-10T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodPost, "/api/v1/rollover/sweep", ts.token("stu-1", domain.RoleStudent), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	var report domain.SweepReport
	rr = ts.do(http.MethodPost, "/api/v1/rollover/sweep", admin, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.StudentPayments.Count)
	assert.Equal(t, domain.Period{Year: 2024, Month: time.April}, report.StudentPayments.Details[0].NewPeriod)

	rr = ts.do(http.MethodPost, "/api/v1/rollover/sweep", admin, "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 0, report.StudentPayments.Count)
	assert.Equal(t, 1, report.StudentPayments.Skipped)

	var manual domain.ManualRolloverResult
	rr = ts.do(http.MethodPost, "/api/v1/rollover/manual", admin, `{"student_entry_ids":["`+e.ID+`","missing"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &manual))
	assert.Empty(t, manual.Payments)
	require.Len(t, manual.Failures, 1)
	assert.Equal(t, "missing", manual.Failures[0].EntryID)

	rr = ts.do(http.MethodPost, "/api/v1/rollover/manual", admin, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodGet, "/health", "", "").Code)
}
