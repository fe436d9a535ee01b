package http

import (
	"context"
	"net/http"
	"payouts/internal/domain"
	"payouts/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

// Combine runs checks in order and fails on the first error. Nil checks are
// skipped.
func Combine(checks ...HealthCheck) HealthCheck {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func NewRouter(h *WithdrawalHandler, secret string, health HealthCheck, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
				return
			}
		}
		writeOK(w, http.StatusOK, "status", "ok")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(secret))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(domain.RoleSeller))
			r.Post("/withdrawals", h.CreateWithdrawal)
			r.Get("/withdrawals", h.ListMine)
			r.Get("/balance", h.Balance)
		})

		r.Route("/admin/withdrawals", func(r chi.Router) {
			r.Use(RequireRole(domain.RoleAdmin))
			r.Get("/", h.ListAll)
			r.Get("/stats", h.Stats)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Finalize)
		})

		r.With(RequireRole(domain.RoleAdmin)).Post("/admin/balances/{sellerId}/credits", h.Credit)
	})

	return r
}
