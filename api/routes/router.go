package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/library-backend/api/controllers"
	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/internal/catalog"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/internal/reservations"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

type rateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// redisDependency is satisfied by *redis.Client.
type redisDependency interface {
	rateLimitStore
	Ping(ctx context.Context) error
}

// RouterParams groups everything the HTTP surface is built from. Redis and
// Metrics are optional.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        redisDependency
	Metrics      http.Handler
	HTTPMetrics  *metrics.HTTPMetrics
	Catalog      catalog.Service
	Loans        loans.Service
	Reservations reservations.Service
	HoldJobs     controllers.HoldJobs
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	var redisPinger controllers.Pinger
	var rateStore rateLimitStore
	if params.Redis != nil {
		redisPinger = params.Redis
		rateStore = params.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, params.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, redisPinger))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, rateStore, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Route("/loans", func(r chi.Router) {
				r.Post("/", controllers.LoanCreate(params.Loans, logg))
				r.Get("/my", controllers.LoanListMine(params.Loans, logg))
				r.Get("/{loanId}", controllers.LoanGet(params.Loans, logg))
				r.Patch("/{loanId}/return", controllers.LoanReturn(params.Loans, logg))
				r.Patch("/{loanId}/renew", controllers.LoanRenew(params.Loans, logg))
			})

			r.Route("/reservations", func(r chi.Router) {
				r.Post("/", controllers.ReservationCreate(params.Reservations, logg))
				r.Get("/my", controllers.ReservationListMine(params.Reservations, logg))
				r.Get("/{reservationId}", controllers.ReservationGet(params.Reservations, logg))
				r.Patch("/{reservationId}/cancel", controllers.ReservationCancel(params.Reservations, logg))
			})

			r.Get("/authors/{authorId}", controllers.AuthorGet(params.Catalog, logg))

			r.Route("/books/{bookId}", func(r chi.Router) {
				r.Get("/", controllers.BookGet(params.Catalog, logg))
				r.Get("/availability", controllers.BookAvailability(params.Catalog, logg))
				r.Get("/copies", controllers.BookCopies(params.Catalog, logg))
			})
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Post("/authors", controllers.AdminAuthorCreate(params.Catalog, logg))
			r.Put("/authors/{authorId}", controllers.AdminAuthorUpdate(params.Catalog, logg))
			r.Delete("/authors/{authorId}", controllers.AdminAuthorDelete(params.Catalog, logg))

			r.Post("/books", controllers.AdminBookCreate(params.Catalog, logg))
			r.Put("/books/{bookId}", controllers.AdminBookUpdate(params.Catalog, logg))
			r.Post("/books/{bookId}/copies", controllers.AdminBookAddCopies(params.Catalog, logg))
			r.Delete("/books/{bookId}", controllers.AdminBookDelete(params.Catalog, logg))

			r.Get("/loans/overdue", controllers.AdminLoansOverdue(params.Loans, logg))

			r.Post("/system/process-holds", controllers.AdminProcessHolds(params.HoldJobs, logg))
			r.Post("/system/expire-holds", controllers.AdminExpireHolds(params.HoldJobs, logg))
		})
	})

	return r
}
