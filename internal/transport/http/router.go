package http

import (
	"net/http"

	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/transport/http/handler"
	appmiddleware "github.com/blox-verify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	healthH := handler.NewHealthHandler()
	r.Get("/", healthH.Root)
	r.Head("/", healthH.Root)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		if deps.JWTProvider == nil {
			return
		}

		// 5 requests/second, burst of 10, per client IP.
		adminRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
		adminH := handler.NewAdminHandler(deps.Verification, deps.Credits, deps.Moderation, cfg.Discord.GuildID)

		r.Route("/admin", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Use(adminRL.Limit)
			r.Use(appmiddleware.Auth(deps.JWTProvider))
			r.Use(appmiddleware.RequireRole(domain.RoleStaff))

			r.Get("/verifications/{target}", adminH.GetVerification)
			r.Delete("/verifications/{target}", adminH.RevokeVerification)
			r.Get("/credits/{target}", adminH.GetCredits)
			r.Post("/credits/{ownerID}/adjust", adminH.AdjustCredits)
			r.Get("/submissions", adminH.ListSubmissions)
			r.Post("/submissions/{id}/decision", adminH.DecideSubmission)
		})
	})

	return r
}
