package http

import (
	"log/slog"
	"net/http"

	"github.com/go-auth-nosql/internal/application/identity"
	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.Metrics(deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	notifier := notify.NewDispatcher(notify.DispatcherDeps{
		Sender:           deps.Sender,
		Product:          cfg.AppName,
		VerifyEmailURL:   cfg.VerifyEmailURL,
		PasswordResetURL: cfg.PasswordResetURL,
		Timeout:          cfg.NotifyTimeout,
		Logger:           logger,
		Metrics:          deps.Metrics,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		Accounts:  deps.Accounts,
		Hasher:    deps.Hasher,
		Tokens:    deps.Tokens,
		Notifier:  notifier,
		Metrics:   deps.Metrics,
		Logger:    logger,
		SecretTTL: cfg.SecretTokenExpiry,
		Now:       deps.Now,
	})
	identitySvc := identity.NewService(identity.ServiceDeps{
		Accounts:  deps.Accounts,
		Hasher:    deps.Hasher,
		Notifier:  notifier,
		Metrics:   deps.Metrics,
		Logger:    logger,
		SecretTTL: cfg.SecretTokenExpiry,
		Now:       deps.Now,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(sessionSvc, identitySvc, handler.CookieOptions{
		Secure: cfg.CookieSecure,
		Now:    deps.Now,
	}, logger)
	authMw := appmiddleware.Auth(deps.Tokens)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.Register)
			r.Post("/login", authH.Login)
			r.Get("/verify-email/{token}", authH.VerifyEmail)
			r.Post("/refresh-token", authH.Refresh)
			r.Post("/forgot-password", authH.ForgotPassword)
			r.Post("/reset-password/{token}", authH.ResetPassword)
			r.Post("/request-email-verification", authH.RequestVerification)

			r.Group(func(r chi.Router) {
				r.Use(authMw)

				r.Post("/logout", authH.Logout)
				r.Get("/current-user", authH.CurrentUser)
				r.Post("/change-password", authH.ChangePassword)
				r.Post("/resend-email-verification", authH.ResendVerification)
			})
		})
	})

	return r
}
