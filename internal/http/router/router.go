package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/notesync/auth-service/internal/health"
	"github.com/notesync/auth-service/internal/http/handler"
	"github.com/notesync/auth-service/internal/http/middleware"
	"github.com/notesync/auth-service/internal/http/response"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	SessionHandler    *handler.SessionHandler
	UserHandler       *handler.UserHandler
	InvitationHandler *handler.InvitationHandler
	OfflineHandler    *handler.OfflineHandler
	Authenticator     middleware.Authenticator
	AuthRateLimitRPM  int
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Authenticator)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/sign-in", dep.AuthHandler.SignIn)
			r.With(requireAuth).Post("/sign-out", dep.AuthHandler.SignOut)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(authLimiter).Post("/refresh", dep.SessionHandler.Refresh)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", dep.SessionHandler.List)
				r.Delete("/", dep.SessionHandler.RevokeOthers)
				r.Delete("/{uuid}", dep.SessionHandler.Revoke)
			})
		})

		r.Route("/users/{userUuid}", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireSelf("userUuid"))
			r.Delete("/", dep.UserHandler.DeleteAccount)
			r.Get("/features", dep.UserHandler.Features)
			r.Get("/settings", dep.UserHandler.ListSettings)
			r.Put("/settings", dep.UserHandler.UpdateSetting)
			r.Get("/settings/{name}", dep.UserHandler.GetSetting)
			r.Delete("/settings/{name}", dep.UserHandler.DeleteSetting)
			r.Get("/subscription-settings/{name}", dep.UserHandler.GetSubscriptionSetting)
		})

		r.Route("/subscription-invites", func(r chi.Router) {
			r.Get("/{uuid}/accept", dep.InvitationHandler.Accept)
			r.Get("/{uuid}/decline", dep.InvitationHandler.Decline)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", dep.InvitationHandler.Invite)
				r.Get("/", dep.InvitationHandler.List)
				r.Delete("/{uuid}", dep.InvitationHandler.Cancel)
			})
		})

		r.Route("/offline", func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/subscription-tokens", dep.OfflineHandler.CreateToken)
			r.Get("/features", dep.OfflineHandler.Features)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
