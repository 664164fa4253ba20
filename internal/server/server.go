// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides which URL patterns map to which
// handlers, which middleware runs where, and how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ──────────────┐
//	  catalog.Client ─────────┤
//	  query.Client (cache) ───┼→ services → handlers → routes
//	  session.Registry ───────┘
//
// All dependencies are wired here, in one place (the "composition root").
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/catalog"
	"github.com/sakif/readrealm/internal/config"
	"github.com/sakif/readrealm/internal/handler"
	"github.com/sakif/readrealm/internal/middleware"
	"github.com/sakif/readrealm/internal/query"
	sqliteRepo "github.com/sakif/readrealm/internal/repository/sqlite"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/session"
	"github.com/sakif/readrealm/internal/validation"
)

const (
	// sessionIdle is how long an untouched in-memory session survives.
	sessionIdle = 24 * time.Hour
	sweepEvery  = 10 * time.Minute
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained, so no request is cut off mid-write.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions *session.Registry
	metrics  *prometheus.Registry
	streams  *handler.ChatHandler
}

// New opens the database and wires every service, handler and route.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// === METRICS REGISTRY ===
	// A private registry (instead of the global default) keeps tests that
	// build several servers from colliding on duplicate registration.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: reg,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                              → liveness + database ping
//	GET  /metrics                              → Prometheus scrape endpoint
//
//	POST /api/auth/signup | signin | signout   → session Provider
//	GET  /api/auth/me                          → settled session state
//	GET  /api/auth/github/login | callback     → only when GitHub is configured
//
//	GET  /api/books/search?q=                  → catalog search (cached)
//	GET  /api/books/genre/{genre}              → catalog by subject (cached)
//	GET  /api/books/{id}                       → one book (cached)
//	GET  /api/books/{id}/rating                → local average rating
//	GET  /api/books/{id}/reviews               → reviews, newest first
//	GET  /api/searches/recent                  → recent-search cookie
//	DELETE /api/searches/recent?q=
//
//	GET  /api/users/{id}/profile | follow | follow-stats | booklists
//	GET  /api/themes, PUT /api/profile/theme   → theme for anyone, synced when signed in
//	GET  /api/groups, GET /api/groups/{id}/messages[/stream]
//
//	(auth) reviews/mine, booklists, challenges, profile, follow toggle,
//	       group creation and messages
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, RealIP, Recoverer (chi)
//  2. Logger, Metrics (ours)
//  3. CORS, so preflight requests never reach the session layer
//  4. Sessions, on /api only: resolves the browser's identity before handlers run
func (s *Server) setupRoutes() error {
	cfg := s.config
	secure := cfg.Production()

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.NewMetrics(s.metrics).Handler)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Infrastructure ===
	cache := query.New(query.Config{
		Timeout:    cfg.QueryTimeout,
		GCTime:     cfg.QueryGCTime,
		Registerer: s.metrics,
	}, s.logger)
	books := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.BooksAPIURL,
		APIKey:     cfg.BooksAPIKey,
		RatePerSec: cfg.BooksRatePerSec,
	}, s.logger)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	v := validation.New()

	// === Services ===
	// s.db implements every repository interface; each service only sees the
	// slice it needs.
	authService := service.NewAuthService(s.db, s.db, tokens, auth.NewPasswordService(), s.logger)
	catalogService := service.NewCatalogService(books, s.db, cache, s.logger)
	reviewService := service.NewReviewService(s.db, cache, s.logger)
	booklistService := service.NewBooklistService(s.db, cache, s.logger)
	challengeService := service.NewChallengeService(s.db, cache, s.logger)
	followService := service.NewFollowService(s.db, cache, s.logger)
	profileService := service.NewProfileService(s.db, cache, s.logger)
	chatService := service.NewChatService(s.db, s.db, cache, cfg.ChatPollInterval, s.logger)

	s.sessions = session.NewRegistry(authService, s.logger)
	s.metrics.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "readrealm",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Live browser sessions.",
		}, func() float64 { return float64(s.sessions.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "readrealm",
			Subsystem: "sessions",
			Name:      "authenticated",
			Help:      "Live browser sessions with a signed-in user.",
		}, func() float64 { return float64(s.sessions.Authenticated()) }),
	)

	// === Handlers ===
	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, s.sessions, v, cfg.SessionTTL, secure, s.logger)
	bookHandler := handler.NewBookHandler(catalogService, reviewService, v, secure, s.logger)
	listHandler := handler.NewListHandler(booklistService, challengeService, v, s.logger)
	socialHandler := handler.NewSocialHandler(followService, profileService, v, secure, s.logger)
	chatHandler := handler.NewChatHandler(chatService, v, s.logger)
	s.streams = chatHandler

	// === Infrastructure Routes ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Sessions(s.sessions, secure))

		// --- Public ---
		r.Post("/auth/signup", authHandler.HandleSignUp)
		r.Post("/auth/signin", authHandler.HandleSignIn)
		r.Post("/auth/signout", authHandler.HandleSignOut)
		r.Get("/auth/me", authHandler.HandleMe)
		if github != nil {
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		}

		r.Get("/books/search", bookHandler.HandleSearch)
		r.Get("/books/genre/{genre}", bookHandler.HandleGenre)
		r.Get("/books/{id}", bookHandler.HandleGetBook)
		r.Get("/books/{id}/rating", bookHandler.HandleRating)
		r.Get("/books/{id}/reviews", bookHandler.HandleListReviews)
		r.Get("/searches/recent", bookHandler.HandleRecentSearches)
		r.Delete("/searches/recent", bookHandler.HandleRemoveRecentSearch)

		r.Get("/users/{id}/profile", socialHandler.HandleGetProfile)
		r.Get("/users/{id}/follow", socialHandler.HandleFollowState)
		r.Get("/users/{id}/follow-stats", socialHandler.HandleFollowStats)
		r.Get("/users/{id}/booklists", listHandler.HandleReadingLists)
		r.Get("/themes", socialHandler.HandleThemes)
		r.Put("/profile/theme", socialHandler.HandleSetTheme)

		r.Get("/groups", chatHandler.HandleListGroups)
		r.Get("/groups/{id}/messages", chatHandler.HandleListMessages)
		r.Get("/groups/{id}/messages/stream", chatHandler.HandleStream)

		// --- Signed in only ---
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/books/{id}/reviews/mine", bookHandler.HandleMyReview)
			r.Put("/books/{id}/reviews/mine", bookHandler.HandleSubmitReview)

			r.Get("/booklists", listHandler.HandleListBooklists)
			r.Post("/booklists", listHandler.HandleCreateBooklist)
			r.Post("/booklists/{id}/books", listHandler.HandleAddToBooklist)

			r.Get("/challenges", listHandler.HandleListChallenges)
			r.Post("/challenges", listHandler.HandleCreateChallenge)
			r.Post("/challenges/{id}/books", listHandler.HandleAddToChallenge)

			r.Get("/profile", socialHandler.HandleMyProfile)
			r.Put("/profile", socialHandler.HandleUpdateProfile)
			r.Put("/profile/avatar", socialHandler.HandleSetAvatar)
			r.Post("/users/{id}/follow", socialHandler.HandleToggleFollow)

			r.Post("/groups", chatHandler.HandleCreateGroup)
			r.Post("/groups/{id}/messages", chatHandler.HandleSendMessage)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// sweepSessions drops idle in-memory sessions until ctx is done.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(sessionIdle); n > 0 {
				s.logger.Debug("swept idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases file lock)
//
// Open event streams are told to end as soon as Shutdown begins.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// Shutdown does not cancel hijacked or long-lived responses on its own.
	srv.RegisterOnShutdown(s.streams.Close)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go s.sweepSessions(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.AppEnv),
			slog.String("database", s.config.DBPath),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
