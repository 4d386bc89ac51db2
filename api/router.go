// Package api exposes a Tally engine over HTTP. Every /api route requires
// a bearer token issued by package auth; the caller's tenant and role are
// resolved from the member directory and placed in the request context.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/tally"
	"github.com/xraph/tally/auth"
)

// Handler holds the API dependencies.
type Handler struct {
	tally   *tally.Tally
	auth    *auth.Manager
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(metrics http.Handler) Option {
	return func(h *Handler) { h.metrics = metrics }
}

// NewHandler creates a Handler over t, verifying tokens with am.
func NewHandler(t *tally.Tally, am *auth.Manager, opts ...Option) *Handler {
	h := &Handler{tally: t, auth: am, logger: t.Logger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns a chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.requestLog)
	r.Use(chimw.Recoverer)
	h.Routes(r)
	return r
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Route("/fatture", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/stats", h.InvoiceStats)
			r.Get("/numero-disponibile", h.NextInvoiceNumber)
			r.Get("/{id}", h.GetInvoice)
			r.Put("/{id}", h.UpdateInvoice)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		r.Route("/pagamenti", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.RecordPayment)
			r.Get("/fattura/{id}/residuo", h.Residual)
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Post("/", h.CreateReward)
			r.Get("/admin", h.ListAllRewards)
			r.Get("/stats", h.RewardStats)

			r.Get("/redemptions/pending", h.ListPendingRedemptions)
			r.Get("/redemptions/my", h.ListMyRedemptions)
			r.Get("/redemptions/approved", h.ListApprovedRedemptions)
			r.Put("/redemptions/{id}", h.ReviewRedemption)
			r.Post("/redemptions/{id}/choose-pickup", h.ChoosePickup)
			r.Put("/redemptions/{id}/mark-delivered", h.MarkDelivered)

			r.Get("/{id}", h.GetReward)
			r.Put("/{id}", h.UpdateReward)
			r.Delete("/{id}", h.DeleteReward)
			r.Post("/{id}/redeem", h.Redeem)
		})

		r.Route("/scores", func(r chi.Router) {
			r.Post("/", h.RecordScore)
			r.Get("/leaderboard", h.Leaderboard)
			r.Get("/balance", h.Balance)
			r.Get("/user/{userID}", h.ListScores)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Put("/{id}/read", h.MarkNotificationRead)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.AddMember)
			r.Get("/me", h.Me)
		})
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.tally.Store().Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authMiddleware verifies the bearer token and puts the caller's scope in
// the request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r)
		if !ok {
			Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.auth.Verify(token)
		if err != nil {
			Error(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sc, err := h.tally.ResolveScope(r.Context(), claims.TenantID, claims.Subject)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(tally.WithScope(r.Context(), sc)))
	})
}

// requestLog logs one line per request.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
