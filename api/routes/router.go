package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/agencyhub-backend/api/controllers"
	contractcontrollers "github.com/angelmondragon/agencyhub-backend/api/controllers/contracts"
	"github.com/angelmondragon/agencyhub-backend/api/middleware"
	"github.com/angelmondragon/agencyhub-backend/internal/contracts"
	"github.com/angelmondragon/agencyhub-backend/internal/notifications"
	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/agencyhub-backend/pkg/redis"
)

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	contractsService contracts.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	userPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.UserLimit)
	editors := middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleManager)
	admins := middleware.RequireRole(logg, enums.UserRoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(userPolicy, redisClient, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", contractcontrollers.List(contractsService, logg))
			r.With(editors).Post("/", contractcontrollers.Create(contractsService, logg))
			r.Get("/stats", contractcontrollers.Stats(contractsService, logg))
			r.Get("/expiring", contractcontrollers.Expiring(contractsService, logg))

			r.Route("/{contractId}", func(r chi.Router) {
				r.Get("/", contractcontrollers.Get(contractsService, logg))
				r.With(editors).Patch("/", contractcontrollers.Update(contractsService, logg))
				r.With(admins).Delete("/", contractcontrollers.Delete(contractsService, logg))
				r.With(editors).Post("/sign", contractcontrollers.Sign(contractsService, logg, nil))
				r.With(editors).Post("/status", contractcontrollers.UpdateStatus(contractsService, logg))
				r.Get("/history", contractcontrollers.History(contractsService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		})
	})

	return r
}
