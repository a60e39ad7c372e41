package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Freeeeeet/tutorflow/internal/errors"
	"github.com/Freeeeeet/tutorflow/internal/model"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	HeaderActorID       = "X-Actor-Id"
	HeaderInternalToken = "X-Internal-Token"
)

type contextKey string

const actorContextKey contextKey = "actor"

func actorFrom(ctx context.Context) model.Actor {
	if actor, ok := ctx.Value(actorContextKey).(model.Actor); ok {
		return actor
	}
	return model.Actor{}
}

// authenticate доверяет X-Actor-Id только вместе с общим токеном шлюза
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderInternalToken)
		if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			s.logger.Warn("Invalid internal token", zap.String("remote_addr", r.RemoteAddr))
			writeError(w, apperrors.Unauthorized("invalid internal token"))
			return
		}

		id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, apperrors.Unauthorized("missing actor id"))
			return
		}

		actor, err := s.users.ActorByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r.Context())
		decision := s.limiter.Allow(r.Context(), "http", actor.ID)
		if decision.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(decision.ResetAt).Seconds())+1))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger access log в zap
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}
