// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is wired here, in New and
// setupRoutes, rather than scattered across the codebase.
//
//	main.go: config.Load → store (sqlite or memory) → server.New
//	server.New: store → services → handlers → routes
//
// Each layer only receives what it needs. Services get repository
// interfaces, handlers get services; nothing below this package knows which
// store is in use.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/botnet/internal/auth"
	"github.com/sakif/botnet/internal/config"
	"github.com/sakif/botnet/internal/handler"
	"github.com/sakif/botnet/internal/middleware"
	"github.com/sakif/botnet/internal/repository"
	"github.com/sakif/botnet/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config *config.Config
	store  repository.Store
	logger *slog.Logger
}

// New wires services and handlers onto store. The caller owns store and
// closes it after Start returns.
func New(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		store:  store,
		logger: logger,
	}
	s.setupRoutes(tokens, auth.NewPasswordService())
	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                               → liveness
// GET    /metrics                               → Prometheus
// POST   /auth/signup | /login | /refresh | /logout
// GET    /auth/github/login | /callback         → only when GitHub is configured
// GET    /api/me                                → own full profile
// PATCH  /api/me                                → update own profile
// POST   /api/me/posts                          → add a post
// GET    /api/me/requests                       → pending requests
// POST   /api/me/requests/{requesterID}/accept  → accept
// DELETE /api/me/requests/{requesterID}         → decline
// GET    /api/profiles/{username}               → full or restricted view
// POST   /api/profiles/{username}/follow        → request to follow
// DELETE /api/profiles/{username}/follow        → unfollow
// DELETE /api/profiles/{username}/request       → withdraw request
// GET    /api/search?q=                         → directory search
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (Logger reads it)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Metrics: counts requests per route pattern
// 5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(tokens *auth.TokenService, passwords *auth.PasswordService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	timeout := s.config.StoreTimeout
	accounts := service.NewAccountService(s.store, s.store, tokens, passwords, timeout, s.logger)
	profiles := service.NewProfileService(s.store, timeout, s.logger)
	graph := service.NewGraphService(s.store, s.store, timeout, s.logger)

	var github handler.GitHubSignIn
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	authHandler := handler.NewAuthHandler(accounts, github, s.config.CookieSecure, s.logger)
	profileHandler := handler.NewProfileHandler(profiles, s.logger)
	graphHandler := handler.NewGraphHandler(graph, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)

		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Route("/me", func(r chi.Router) {
			r.Get("/", profileHandler.HandleMe)
			r.Patch("/", profileHandler.HandleUpdateMe)
			r.Post("/posts", profileHandler.HandleAddPost)
			r.Get("/requests", graphHandler.HandleListRequests)
			r.Post("/requests/{requesterID}/accept", graphHandler.HandleAcceptRequest)
			r.Delete("/requests/{requesterID}", graphHandler.HandleDeclineRequest)
		})

		r.Route("/profiles/{username}", func(r chi.Router) {
			r.Get("/", profileHandler.HandleGetProfile)
			r.Post("/follow", graphHandler.HandleRequestFollow)
			r.Delete("/follow", graphHandler.HandleUnfollow)
			r.Delete("/request", graphHandler.HandleWithdrawRequest)
		})

		r.Get("/search", profileHandler.HandleSearch)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully:
//
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
