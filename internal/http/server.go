// Package http serves the ledger JSON API over a session.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/metrics"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/middleware/ratelimit"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/middleware/security"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/middleware/trace"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/session"
	"github.com/go-playground/validator/v10"
)

// Options configures NewServer. Every field is optional.
type Options struct {
	Logger  *applog.Logger
	Metrics *metrics.Metrics
	// RateLimitPerMinute bounds writes per client (default: 60)
	RateLimitPerMinute int
	// Ready reports whether dependencies such as the database respond.
	Ready func(ctx context.Context) error
	Now   func() time.Time
}

type Server struct {
	http.Server
	session  *session.Session
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	validate *validator.Validate
	logger   *applog.Logger
	ready    func(ctx context.Context) error
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, sess *session.Session, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		session:  sess,
		metrics:  opts.Metrics,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		validate: newValidator(),
		logger:   opts.Logger.WithComponent(applog.ComponentHTTP),
		ready:    opts.Ready,
		now:      opts.Now,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, rateLimited)(h)
	h = s.detector.Middleware(suspicious)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP, s.metrics).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/session", s.handleSession)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/categories/{id}", s.handleGetCategory)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handlePatchCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/categories/{id}/move", s.handleMoveCategory)
	mux.HandleFunc("GET /api/categories/{id}/path", s.handleCategoryPath)
	mux.HandleFunc("GET /api/categories/{id}/children", s.handleCategoryChildren)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/reports/monthly", s.handleMonthlyReport)
	mux.HandleFunc("GET /api/reports/yearly", s.handleYearlyReport)
	mux.HandleFunc("GET /api/reports/hierarchy", s.handleHierarchyReport)
	mux.HandleFunc("GET /api/reports/comparison", s.handleComparisonReport)
	mux.HandleFunc("GET /api/reports/overview", s.handleOverviewReport)
	mux.HandleFunc("GET /api/reports/fixed", s.handleFixedReport)
	mux.HandleFunc("GET /api/reports/subtree/{id}", s.handleSubtreeReport)
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.session.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"canEdit": s.session.CanEdit(),
		"origin":  s.session.Origin(),
	})
}
