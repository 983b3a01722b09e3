package api

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
)

type RouterConfig struct {
	Handler    *Handler
	Auth       *Authenticator
	Production bool
	// RateLimit is the per-IP request budget per RateWindow; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

func NewRouter(cfg RouterConfig) *mux.Router {
	h := cfg.Handler
	r := mux.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Production,
	})
	r.Use(secureMiddleware.Handler)
	if cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.Limit(cfg.RateLimit, window, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(cfg.Auth.Middleware)

	apiV1.HandleFunc("/rollover/sweep", instrument("/rollover/sweep", h.SweepHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/rollover/manual", instrument("/rollover/manual", h.ManualRolloverHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/payments/entries/{id}/request-approval",
		instrument("/payments/entries/{id}/request-approval", h.RequestApprovalHandler)).Methods(http.MethodPost)

	const ledger = "/{ledger:payments|salaries}"
	apiV1.HandleFunc(ledger+"/entries", instrument("/{ledger}/entries", h.CreateEntryHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc(ledger+"/entries", instrument("/{ledger}/entries", h.ListEntriesHandler)).Methods(http.MethodGet)
	apiV1.HandleFunc(ledger+"/entries/{id}", instrument("/{ledger}/entries/{id}", h.GetEntryHandler)).Methods(http.MethodGet)
	apiV1.HandleFunc(ledger+"/entries/{id}/transition",
		instrument("/{ledger}/entries/{id}/transition", h.TransitionHandler)).Methods(http.MethodPost)

	return r
}
