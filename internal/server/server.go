// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config → Server.New() creates:
//   sqlite.DB + redis.Client → repositories → services → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/config"
	"github.com/sakif/waveroom/internal/handler"
	"github.com/sakif/waveroom/internal/middleware"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository/redispresence"
	sqliteRepo "github.com/sakif/waveroom/internal/repository/sqlite"
	"github.com/sakif/waveroom/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database and Redis connections. When the server shuts
// down, both must be closed — the SQLite close flushes the WAL and releases
// the file lock. This is handled in Start() during graceful shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	rdb    *redis.Client

	// clips is kept on the server for the scheduled-publish sweep that
	// Start runs alongside the HTTP listener.
	clips *service.ClipService
}

// New creates a new Server with the given config.
//
// The entire dependency chain is assembled here:
//  1. Open the database and Redis connections
//  2. Create the repositories over them
//  3. Create the services with the repositories and the change-feed hub
//  4. Create the handlers with the services
//  5. Wire handlers to routes
//
// Each layer only receives what it needs: services get repository
// interfaces (not *sqlite.DB), handlers get services (not repositories).
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === SHARED INFRASTRUCTURE ===
	hub := realtime.NewHub(s.logger)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// === REPOSITORIES ===
	clipRepo := sqliteRepo.NewClipRepo(s.db)
	playlistRepo := sqliteRepo.NewPlaylistRepo(s.db)
	roomRepo := sqliteRepo.NewRoomRepo(s.db)
	topicRepo := sqliteRepo.NewTopicRepo(s.db)
	diaryRepo := sqliteRepo.NewDiaryRepo(s.db)
	communityRepo := sqliteRepo.NewCommunityRepo(s.db)
	userRepo := sqliteRepo.NewUserRepo(s.db)
	analyticsRepo := sqliteRepo.NewAnalyticsRepo(s.db)
	presence := redispresence.New(s.rdb)

	// === SERVICES ===
	clipService := service.NewClipService(clipRepo, userRepo, hub, s.logger)
	playlistService := service.NewPlaylistService(playlistRepo, clipRepo, hub, s.logger)
	roomService := service.NewRoomService(roomRepo, presence, communityRepo, hub, s.logger)
	topicService := service.NewTopicService(topicRepo, hub, s.logger)
	diaryService := service.NewDiaryService(diaryRepo, s.logger)
	communityService := service.NewCommunityService(communityRepo, hub, s.logger)
	analyticsService := service.NewAnalyticsService(analyticsRepo, s.logger)
	authService := service.NewAuthService(userRepo, tokens, auth.NewPINService(), s.logger)

	s.clips = clipService

	// === HANDLERS ===
	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)
	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	clipHandler := handler.NewClipHandler(clipService, s.logger)
	playlistHandler := handler.NewPlaylistHandler(playlistService, s.logger)
	roomHandler := handler.NewRoomHandler(roomService, s.logger)
	topicHandler := handler.NewTopicHandler(topicService, s.logger)
	diaryHandler := handler.NewDiaryHandler(diaryService, s.logger)
	communityHandler := handler.NewCommunityHandler(communityService, s.logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, s.logger)
	subscribeHandler := handler.NewSubscribeHandler(hub, s.logger)

	pageHandler, err := handler.NewPageHandler(s.config.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	embedHandler, err := handler.NewEmbedHandler(clipService, s.config.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating embed handler: %w", err)
	}

	// === STATIC FILES ===
	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	// === PAGES ===
	s.router.Get("/faq", pageHandler.HandleFAQ)
	s.router.Get("/dmca", pageHandler.HandleDMCA)
	s.router.Get("/embed/{clipID}", embedHandler.HandleEmbed)

	// === LOGIN FLOWS ===
	// These live outside /api: they are entered without a session.
	s.router.Post("/auth/pin", authHandler.HandlePINLogin)
	s.router.Post("/auth/link/redeem", authHandler.HandleRedeemLink)
	s.router.Post("/auth/logout", authHandler.HandleLogout)
	if s.config.GitHubClientID != "" {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set — GitHub login disabled")
	}

	// === PUBLIC API ===
	// OptionalAuth: anonymous reads work, a valid session enriches nothing
	// here yet but keeps the middleware chain uniform.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/api/feed", clipHandler.HandleFeed)
		r.Get("/api/clips/{id}", clipHandler.HandleGet)
		r.Get("/api/clips/{id}/replies", clipHandler.HandleReplies)
		r.Post("/api/clips/{id}/react", clipHandler.HandleReact)
		r.Post("/api/clips/{id}/listen", clipHandler.HandleListen)

		r.Get("/api/playlists/{key}", playlistHandler.HandleGet)
		r.Get("/api/playlists/{key}/collaborators", playlistHandler.HandleCollaborators)

		r.Get("/api/rooms", roomHandler.HandleListLive)
		r.Get("/api/rooms/{id}", roomHandler.HandleGet)
		r.Get("/api/rooms/{id}/ws", subscribeHandler.HandleRoomFeed)

		r.Get("/api/topics/{id}", topicHandler.HandleGet)
		r.Get("/api/topics/daily/{date}", topicHandler.HandleGetDaily)
		r.Post("/api/comments/{id}/upvote", topicHandler.HandleUpvote)

		r.Get("/api/communities", communityHandler.HandleList)
		r.Get("/api/communities/{id}", communityHandler.HandleGet)
		r.Get("/api/communities/{id}/topics", topicHandler.HandleListByCommunity)

		r.Get("/api/analytics/top-creators", analyticsHandler.HandleTopCreators)
		r.Get("/api/analytics/creators/{id}", analyticsHandler.HandleCreatorStats)

		// The change-feed socket. Subscriptions are scoped to rows the
		// public API exposes anyway, so it needs no session.
		r.Get("/api/subscribe", subscribeHandler.HandleSubscribe)
	})

	// === AUTHENTICATED API ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/api/me", authHandler.HandleMe)
		r.Put("/api/me", authHandler.HandleUpdateProfile)
		r.Post("/api/auth/link", authHandler.HandleMintLink)
		r.Post("/api/users/{id}/follow", authHandler.HandleFollow)
		r.Delete("/api/users/{id}/follow", authHandler.HandleUnfollow)

		r.Post("/api/clips", clipHandler.HandleCreate)
		r.Get("/api/feed/following", clipHandler.HandleFollowingFeed)
		r.Post("/api/clips/{id}/hide", clipHandler.HandleHide)
		r.Post("/api/clips/{id}/private", clipHandler.HandleMakePrivate)
		r.Post("/api/clips/{id}/anonymize", clipHandler.HandleAnonymize)
		r.Delete("/api/clips/{id}", clipHandler.HandleDelete)
		r.Post("/api/clips/{id}/save", clipHandler.HandleSave)
		r.Delete("/api/clips/{id}/save", clipHandler.HandleUnsave)
		r.Get("/api/saved", clipHandler.HandleSaved)

		r.Get("/api/playlists", playlistHandler.HandleListMine)
		r.Post("/api/playlists", playlistHandler.HandleCreate)
		r.Put("/api/playlists/{key}", playlistHandler.HandleRename)
		r.Delete("/api/playlists/{key}", playlistHandler.HandleDelete)
		r.Post("/api/playlists/{key}/share", playlistHandler.HandleShare)
		r.Post("/api/playlists/{key}/clips", playlistHandler.HandleAddClip)
		r.Delete("/api/playlists/{key}/clips/{clipID}", playlistHandler.HandleRemoveClip)
		r.Put("/api/playlists/{key}/order", playlistHandler.HandleReorder)
		r.Post("/api/playlists/{key}/collaborators", playlistHandler.HandleAddCollaborator)
		r.Delete("/api/playlists/{key}/collaborators/{userID}", playlistHandler.HandleRemoveCollaborator)

		r.Post("/api/rooms", roomHandler.HandleCreate)
		r.Post("/api/rooms/{id}/join", roomHandler.HandleJoin)
		r.Post("/api/rooms/{id}/leave", roomHandler.HandleLeave)
		r.Put("/api/rooms/{id}/flags", roomHandler.HandleSetFlags)
		r.Put("/api/rooms/{id}/roles", roomHandler.HandleSetRole)
		r.Post("/api/rooms/{id}/heartbeat", roomHandler.HandleHeartbeat)
		r.Post("/api/rooms/{id}/end", roomHandler.HandleEnd)

		r.Post("/api/topics", topicHandler.HandleCreate)
		r.Post("/api/topics/{id}/comments", topicHandler.HandleComment)
		r.Post("/api/comments/{id}/answered", topicHandler.HandleMarkAnswered)

		r.Post("/api/communities", communityHandler.HandleCreate)
		r.Post("/api/communities/{id}/join", communityHandler.HandleJoin)
		r.Post("/api/communities/{id}/leave", communityHandler.HandleLeave)

		r.Post("/api/diary", diaryHandler.HandleCreate)
		r.Get("/api/diary", diaryHandler.HandleList)
		r.Get("/api/diary/{id}", diaryHandler.HandleGet)
		r.Put("/api/diary/{id}", diaryHandler.HandleUpdate)
		r.Delete("/api/diary/{id}", diaryHandler.HandleDelete)

		r.Get("/api/analytics/me", analyticsHandler.HandleMyStats)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the Redis client
// 4. Close the database connection (flushes WAL, releases file lock)
//
// The deferred closes ensure 3 and 4 happen even if something panics.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.rdb.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Scheduled clips go live without any request triggering them: sweep
	// once a minute and publish whatever is due.
	sweepDone := make(chan struct{})
	defer close(sweepDone)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := s.clips.PublishDue(ctx, time.Now()); err != nil {
					s.logger.Error("scheduled publish sweep failed",
						slog.String("error", err.Error()))
				}
				cancel()
			case <-sweepDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("redis", s.config.RedisAddr),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// WriteTimeout doesn't apply to hijacked connections, so the
		// change-feed sockets die here with the shutdown context instead.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
