// Package httpapi JSON API поверх тех же операций, что и бот.
// Личность вызывающего приходит от шлюза аутентификации в заголовке X-Actor-Id.
package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/ratelimit"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

type Server struct {
	users      *service.UserService
	engagement *service.EngagementService
	ledger     *service.SessionLedger
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	token      string
	logger     *zap.Logger
	now        func() time.Time
}

func NewServer(
	users *service.UserService,
	engagement *service.EngagementService,
	ledger *service.SessionLedger,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	internalToken string,
	logger *zap.Logger,
) *Server {
	return &Server{
		users:      users,
		engagement: engagement,
		ledger:     ledger,
		limiter:    limiter,
		metrics:    m,
		token:      internalToken,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", s.createRequest)
			r.Get("/", s.listRequests)
			r.Get("/{id}", s.getEngagement)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", s.recordPayment)
			r.Post("/{id}/verify", s.verifyPayment)
			r.Post("/{id}/reject", s.rejectPayment)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", s.assignTutor)
			r.Get("/{id}", s.getMatch)
			r.Patch("/{id}", s.updateMatch)
			r.Post("/{id}/reassign", s.reassignTutor)
			r.Post("/{id}/generate", s.generateSessions)
			r.Post("/{id}/status", s.setEngagementStatus)
			r.Get("/{id}/sessions", s.listSessions)
			r.Get("/{id}/ledger.xlsx", s.exportLedger)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{id}", s.getSession)
			r.Post("/{id}/status", s.updateSessionStatus)
			r.Post("/{id}/reschedule", s.rescheduleSession)
		})

		r.Get("/audit/{entity}/{id}", s.history)
		r.Post("/packages/expire", s.expirePackages)
	})

	return r
}
