package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/api/controllers"
	bookingcontrollers "github.com/tidyops/tidyops-backend/api/controllers/bookings"
	webhookcontrollers "github.com/tidyops/tidyops-backend/api/controllers/webhooks"
	"github.com/tidyops/tidyops-backend/api/middleware"
	"github.com/tidyops/tidyops-backend/internal/assignments"
	"github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/internal/charges"
	squarewebhook "github.com/tidyops/tidyops-backend/internal/webhooks/square"
	"github.com/tidyops/tidyops-backend/pkg/auth/session"
	"github.com/tidyops/tidyops-backend/pkg/config"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/redis"
	"github.com/tidyops/tidyops-backend/pkg/square"
)

// Deps bundles everything the HTTP surface needs. cmd/api builds one of
// these after wiring the service graph.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics *prometheus.Registry

	Sessions session.AccessSessionChecker

	Bookings    bookings.Service
	Assignments assignments.Service
	Charges     charges.Service

	SquareClient *square.Client
	WebhookSvc   *squarewebhook.Service
	WebhookGuard *squarewebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	// A typed nil *redis.Client would dodge the interface nil checks inside
	// the middleware, so resolve it here.
	var idemStore redis.IdempotencyStore
	if deps.Redis != nil {
		idemStore = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		if deps.Redis != nil {
			r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis))
		} else {
			r.Get("/ready", controllers.HealthReady(cfg, deps.DB, nil))
		}
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.Redis != nil {
			policy := middleware.NewRateLimitPolicy("webhook", cfg.Webhooks.RateLimitWindow, cfg.Webhooks.RateLimitPerIP)
			r.Use(middleware.RateLimit(policy, deps.Redis, logg))
		}
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.WebhookSvc, deps.SquareClient, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/", bookingcontrollers.Create(deps.Bookings, logg))
		r.Get("/", bookingcontrollers.List(deps.Bookings, logg))

		r.Route("/{bookingID}", func(r chi.Router) {
			r.Get("/", bookingcontrollers.Detail(deps.Bookings, logg))
			r.Get("/timeline", bookingcontrollers.Timeline(deps.Bookings, logg))
			r.Post("/cancel", bookingcontrollers.Cancel(deps.Bookings, logg))
			r.Post("/reschedule", bookingcontrollers.Reschedule(deps.Bookings, logg))

			r.Post("/card", bookingcontrollers.SaveCard(deps.Charges, logg))
			r.Post("/charge", bookingcontrollers.Charge(deps.Charges, logg))
			r.Get("/charges", bookingcontrollers.ListAttempts(deps.Charges, logg))

			r.Put("/assignments", bookingcontrollers.SyncAssignments(deps.Assignments, logg))
			r.Get("/assignments", bookingcontrollers.ListAssignments(deps.Assignments, logg))
			r.Get("/readiness", bookingcontrollers.Readiness(deps.Assignments, logg))
			r.Post("/complete", bookingcontrollers.Complete(deps.Assignments, logg))
		})
	})

	r.Route("/api/admin/v1/bookings", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/{bookingID}/override-status", bookingcontrollers.OverrideStatus(deps.Bookings, logg))
		r.Get("/{bookingID}/replay-status", bookingcontrollers.ReplayStatus(deps.Bookings, logg))
	})

	return r
}
