package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"go.uber.org/zap"
)

const defaultFeedLimit = 20

type HandlerOptions struct {
	Service *billing.Service
	// Feed backs /api/notifications. Nil serves an empty list.
	Feed *billing.Feed
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type handler struct {
	service *billing.Service
	feed    *billing.Feed
	log     *zap.Logger
}

type customersResponse struct {
	Currency  string                    `json:"currency"`
	Customers []billing.CustomerSummary `json:"customers"`
}

type arrearsResponse struct {
	Currency string `json:"currency"`
	billing.Summary
	// Label mirrors the overdue badge on the payments view.
	Label string `json:"label"`
}

type notificationsResponse struct {
	Notifications []billing.Notification `json:"notifications"`
}

func NewHandler(opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{service: opts.Service, feed: opts.Feed, log: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleRoot)
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/customers", h.handleCustomers)
		r.Get("/customers/{id}", h.handleLedger)
		r.Post("/customers/{id}/records/{index}/toggle", h.handleToggle)
		r.Get("/arrears", h.handleArrears)
		r.Get("/cycle", h.handleCycle)
		r.Get("/notifications", h.handleNotifications)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "cleancity",
		"status":  "ok",
		"message": "ready",
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Summary(); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers()
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, customersResponse{
		Currency:  h.service.Currency(),
		Customers: customers,
	})
}

// customerIDParam decodes the id segment. chi matches on the raw path
// when the request carries escapes that differ from the default encoding.
func customerIDParam(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func (h *handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Ledger(customerIDParam(r))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record index")
		return
	}
	n, err := h.service.Toggle(r.Context(), customerIDParam(r), index)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) handleArrears(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary()
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arrearsResponse{
		Currency: h.service.Currency(),
		Summary:  summary,
		Label:    billing.OverdueLabel(summary.OverdueRecords),
	})
}

func (h *handler) handleCycle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Cycle())
}

func (h *handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	resp := notificationsResponse{Notifications: []billing.Notification{}}
	if h.feed != nil {
		resp.Notifications = h.feed.Recent(limit)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, billing.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrPersistenceFailure),
		errors.Is(err, billing.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
