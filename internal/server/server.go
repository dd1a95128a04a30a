// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the wiring layer: NewApp assembles the dependencies once, New maps
// URLs to handlers and decides which middleware guards which routes, and
// Start runs until a signal arrives and then shuts down gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/oss-hunter/internal/auth"
	"github.com/sakif/oss-hunter/internal/handler"
	"github.com/sakif/oss-hunter/internal/middleware"
	"github.com/sakif/oss-hunter/internal/service"
)

// Server is the HTTP front of an App.
type Server struct {
	router *chi.Mux
	app    *App
	logger *slog.Logger
}

// New builds the router. Feature groups whose secrets are missing are not
// mounted at all; config.Warnings lists them at startup.
func New(app *App) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		app:    app,
		logger: app.Logger,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures middleware and routes.
//
//	GET  /healthz                         → liveness + database check
//	GET  /auth/github/login|callback      → OAuth sign-in
//	POST /auth/logout
//	     /api/...                         → dashboard API (session cookie)
//	POST /webhooks/github                 → GitHub deliveries (HMAC)
//	GET|POST /cron/poll-*                 → sweeps for an external scheduler (bearer)
//
// Middleware order: RequestID first so the logger can print it, Recoverer
// last so it sees panics from everything below it.
func (s *Server) setupRoutes() error {
	cfg := s.app.Config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.HandleHealth(s.app.DB))

	if cfg.AuthEnabled() {
		tokens, err := auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		if err := s.mountAPI(tokens); err != nil {
			return err
		}
	}

	if cfg.WebhooksEnabled() {
		webhooks := handler.NewWebhookHandler(cfg.WebhookSecret, s.app.Discovery, s.logger)
		s.router.Post("/webhooks/github", webhooks.HandleGitHub)
	}

	if cfg.CronEnabled() {
		cron := handler.NewCronHandler(s.app.Sweeps(), s.logger)
		s.router.Route("/cron", func(r chi.Router) {
			r.Use(middleware.RequireBearer(cfg.CronSecret))
			// Hosted cron services issue GETs; POST is kept for manual runs.
			for _, m := range []string{http.MethodGet, http.MethodPost} {
				r.MethodFunc(m, "/poll-issues", cron.HandlePollIssues)
				r.MethodFunc(m, "/poll-copilot", cron.HandlePollCopilot)
				r.MethodFunc(m, "/poll-issue-state", cron.HandlePollIssueState)
			}
		})
	}

	return nil
}

func (s *Server) mountAPI(tokens *auth.TokenService) error {
	cfg := s.app.Config
	a := s.app

	var ghOpts []auth.ProviderOption
	if cfg.GitHub.APIURL != "" {
		ghOpts = append(ghOpts, auth.WithAPIURL(cfg.GitHub.APIURL))
	}
	provider := auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL, ghOpts...)
	authService := service.NewAuthService(a.DB.Users(), tokens, a.Tokens, s.logger)
	secure := strings.HasPrefix(cfg.BaseURL, "https://")

	authHandler := handler.NewAuthHandler(provider, authService, secure, s.logger)
	repos := handler.NewRepoHandler(a.Watches, a.Discovery, s.logger)
	issues := handler.NewIssueHandler(a.Issues, a.AutoFix)
	notifications := handler.NewNotificationHandler(a.Notifications, a.Hub)
	settings := handler.NewSettingsHandler(a.Settings, cfg.Push.VAPIDPublicKey)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Route("/repos", func(r chi.Router) {
			r.Get("/", repos.HandleList)
			r.Post("/", repos.HandleAdd)
			r.Get("/search", repos.HandleSearch)
			r.Post("/sync", repos.HandleSync)
			r.Get("/{id}", repos.HandleGet)
			r.Patch("/{id}", repos.HandleUpdate)
			r.Delete("/{id}", repos.HandleDelete)
			r.Post("/{id}/freeze", repos.HandleFreeze)
			r.Post("/{id}/unfreeze", repos.HandleUnfreeze)
		})

		r.Route("/issues", func(r chi.Router) {
			r.Get("/", issues.HandleList)
			r.Get("/{id}", issues.HandleGet)
			r.Post("/{id}/read", issues.HandleRead)
			r.Post("/{id}/claim", issues.HandleClaim)
			r.Post("/{id}/unclaim", issues.HandleUnclaim)
			r.Post("/{id}/archive", issues.HandleArchive)
			r.Post("/{id}/restore", issues.HandleRestore)
			r.Post("/{id}/retry", issues.HandleRetry)
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/", issues.HandleDrafts)
			r.Post("/{id}/publish", issues.HandlePublish)
			r.Post("/{id}/reject", issues.HandleReject)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notifications.HandleList)
			r.Get("/ws", notifications.HandleStream)
			r.Post("/read-all", notifications.HandleReadAll)
			r.Post("/{id}/read", notifications.HandleRead)
		})

		r.Get("/settings", settings.HandleGet)
		r.Put("/settings", settings.HandleUpdate)

		r.Route("/push", func(r chi.Router) {
			r.Get("/public-key", settings.HandlePublicKey)
			r.Post("/subscribe", settings.HandleSubscribe)
			r.Post("/unsubscribe", settings.HandleUnsubscribe)
		})
	})
	return nil
}

// Start serves until SIGINT/SIGTERM or ctx is done, then drains in-flight
// requests for up to 30 seconds. The in-process scheduler runs alongside
// when enabled.
//
// WriteTimeout stays short for the API; the WebSocket hijacks its
// connection and is not bound by it.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.app.Config

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		sched := s.app.Scheduler()
		sched.Start(ctx)
		defer sched.Stop()
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", cfg.Port),
			slog.String("url", cfg.BaseURL),
			slog.String("database", cfg.DBPath),
			slog.Bool("scheduler", cfg.Scheduler.Enabled),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Live feeds are hijacked connections; Shutdown does not wait for them.
		s.app.Hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
