// Package server wires storage, services, handlers and routes together and
// runs the HTTP server.
//
//	main.go → server.New: sqlite.DB → SnippetService / AuthService
//	                      admin.SnippetAdmin → AdminHandler, SnippetHandler, AuthHandler
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

	"github.com/sakif/snippetcms/internal/admin"
	"github.com/sakif/snippetcms/internal/auth"
	"github.com/sakif/snippetcms/internal/config"
	"github.com/sakif/snippetcms/internal/handler"
	"github.com/sakif/snippetcms/internal/middleware"
	"github.com/sakif/snippetcms/internal/model"
	sqliteRepo "github.com/sakif/snippetcms/internal/repository/sqlite"
	"github.com/sakif/snippetcms/internal/seed"
	"github.com/sakif/snippetcms/internal/service"
	"github.com/sakif/snippetcms/web"
)

// Config is the process configuration plus the pieces that cannot come from
// the environment.
type Config struct {
	config.Config

	// Versioning is the installed versioning extension, nil when none is.
	// It only takes effect with VersioningEnabled.
	Versioning admin.Extension
}

// Server owns the database and the router. Start closes the database on
// shutdown; servers that are never started must be closed with Close.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB

	admin    *admin.SnippetAdmin
	auth     *service.AuthService
	snippets *service.SnippetService
}

// New opens the database, bootstraps the superuser and seed data, and sets
// up every route.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setup(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.DefaultSessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.auth = service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)

	if cfg.AdminUsername != "" {
		if _, err := s.auth.EnsureSuperuser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrapping superuser: %w", err)
		}
	}

	s.admin = admin.New(admin.Options{
		VersioningEnabled: cfg.VersioningEnabled,
		Versioning:        cfg.Versioning,
		EditorMode:        cfg.EditorMode,
		EditorTheme:       cfg.EditorTheme,
		Logger:            s.logger,
	})
	s.snippets = service.NewSnippetService(s.db, !s.admin.VersioningEnabled(), s.logger)

	if cfg.SeedFile != "" {
		loader := seed.NewLoader(s.snippets, s.admin.VersioningEnabled(), s.logger)
		n, err := loader.ApplyFile(ctx, cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}
		s.logger.Info("seed applied", slog.String("file", cfg.SeedFile), slog.Int("created", n))
	}

	pages, err := web.NewTemplates()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	var github handler.GitHubLogin
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.CallbackURL())
	}

	s.routes(
		tokens,
		handler.NewAdminHandler(s.snippets, s.admin, pages, s.logger),
		handler.NewSnippetHandler(s.snippets, s.admin, s.logger),
		handler.NewAuthHandler(s.auth, github, pages, s.logger),
	)
	return nil
}

// routes registers:
//
//	GET        /static/*                         → embedded CSS and JS
//	GET        /admin/login/, POST /admin/login/ → password login
//	POST       /admin/logout/
//	GET        /admin/github/login/, /admin/github/callback/
//	*          /admin/snippets/...               → staff-only admin
//	GET        /api/snippets, /api/snippets/{id}, /api/me
func (s *Server) routes(
	tokens *auth.TokenService,
	adminHandler *handler.AdminHandler,
	snippetHandler *handler.SnippetHandler,
	authHandler *handler.AuthHandler,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	toChangelist := func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, handler.ChangelistPath, http.StatusFound)
	}
	s.router.Get("/", toChangelist)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(auth.LoadUser(tokens, s.auth))

		r.Get("/", toChangelist)
		r.Get("/login/", authHandler.HandleLoginPage)
		r.Post("/login/", authHandler.HandleLogin)
		r.Post("/logout/", authHandler.HandleLogout)
		r.Get("/github/login/", authHandler.HandleGitHubLogin)
		r.Get("/github/callback/", authHandler.HandleGitHubCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireStaff(handler.LoginPath))
			r.Mount("/snippets", adminHandler.Routes())
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(auth.LoadUser(tokens, s.auth))

		r.Get("/snippets", snippetHandler.HandleList)
		r.Get("/snippets/{id}", snippetHandler.HandleGetByID)
		r.Get("/me", authHandler.HandleMe)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Grant gives username staff access with exactly the given permission
// codenames. An empty list keeps the account staff without permissions.
func (s *Server) Grant(ctx context.Context, username string, codenames []string) (*model.User, error) {
	return s.auth.GrantAccess(ctx, username, codenames)
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d%s", s.config.Port, handler.ChangelistPath)),
			slog.String("database", s.config.DBPath),
			slog.Bool("versioning", s.admin.VersioningEnabled()),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
