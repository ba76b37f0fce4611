package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/handlers"
	"github.com/userhub/apiserver/internal/logger"
	"github.com/userhub/apiserver/internal/mailer"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mailer     mailer.Mailer
	log        *logrus.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logger.New()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resetMailer, err := mailer.New(ctx, cfg.Mailer, log)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)
	resetRepo := store.NewPasswordResetRepository(dbConn)

	tokenService := services.NewTokenService(tokenRepo)
	authService := services.NewAuthService(
		userRepo,
		resetRepo,
		tokenService,
		resetMailer,
		log,
		cfg.Auth.BcryptCost,
		cfg.Auth.ResetTokenTTL,
	)
	userService := services.NewUserService(userRepo, tokenService, cfg.Auth.BcryptCost)

	authHandler := handlers.NewAuthHandler(authService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/v1", func(r chi.Router) {
		handlers.AuthRouter(r, authService)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, authHandler.RequireAuth)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mailer:     resetMailer,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting server")
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.mailer != nil {
		_ = s.mailer.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
