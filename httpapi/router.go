package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authkit/internal/rate"
	"github.com/MrEthical07/authkit/middleware"
	"github.com/go-chi/chi/v5"
)

// RouterDeps collects what NewRouter wires together.
type RouterDeps struct {
	Service AuthService
	Logger  *slog.Logger

	// Limiter guards /auth/*. Nil disables limiting.
	Limiter rate.Limiter
	// RetryAfterSeconds is sent with 429 responses.
	RetryAfterSeconds int
	TrustProxy        bool

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health backs /healthz when set.
	Health func(ctx context.Context) error
}

// NewRouter returns the full route table.
//
//	POST /auth/login
//	POST /auth/refresh-token
//	POST /auth/outbound/authentication?code=
//	POST /user/register
//	GET  /user/check-unique-email/{email}
//	GET  /user/check-unique-username/{username}
//	GET  /user/profile              (bearer)
//	GET  /metrics
//	GET  /healthz
func NewRouter(deps RouterDeps) http.Handler {
	h := NewHandler(deps.Service, deps.Logger)
	r := chi.NewRouter()

	r.Use(middleware.ClientIP(deps.TrustProxy))

	r.Route("/auth", func(r chi.Router) {
		if deps.Limiter != nil {
			r.Use(h.rateLimit(deps.Limiter, deps.TrustProxy, deps.RetryAfterSeconds))
		}
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/outbound/authentication", h.OutboundAuthentication)
	})

	r.Route("/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/check-unique-email/{email}", h.CheckUniqueEmail)
		r.Get("/check-unique-username/{username}", h.CheckUniqueUsername)
		r.With(middleware.Guard(deps.Service, h.writeError)).Get("/profile", h.Profile)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Get("/healthz", h.healthz(deps.Health))

	return r
}

func (h *Handler) rateLimit(l rate.Limiter, trustProxy bool, retryAfter int) func(http.Handler) http.Handler {
	if retryAfter < 1 {
		retryAfter = 60
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := middleware.RemoteIP(r, trustProxy)
			err := l.Allow(r.Context(), ip)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, rate.ErrRateLimited):
				h.logger.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				h.writeStatus(w, r, http.StatusTooManyRequests, "too many requests")
			default:
				h.writeError(w, r, err)
			}
		})
	}
}

func (h *Handler) healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				h.writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
