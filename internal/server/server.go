// Package server is the status server that runs next to the bot loop:
// health probes, version, bot status and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/wordpadbot/wordpadbot/internal/errors"
	"github.com/wordpadbot/wordpadbot/internal/observability"
	"github.com/wordpadbot/wordpadbot/internal/server/handlers"
	servermw "github.com/wordpadbot/wordpadbot/internal/server/middleware"
)

// Options configure New. Zero timeouts fall back to the defaults below.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Health *handlers.HealthManager
	Status handlers.StatusProvider
	// AdminToken enables POST /admin/signal when set.
	AdminToken string
}

// Server is the status HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
}

// New builds the router. Call Start to listen.
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.AppVersion)
	}
	opts.ReadTimeout = durationOr(opts.ReadTimeout, 30*time.Second)
	opts.WriteTimeout = durationOr(opts.WriteTimeout, 30*time.Second)
	opts.IdleTimeout = durationOr(opts.IdleTimeout, 120*time.Second)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.New(apperrors.CodeNotFound, "The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.New(apperrors.CodeMethodNotAllowed, "The requested method is not allowed for this resource"))
	})

	handlers.SetHTTPErrorResponder(HandleError)

	s := &Server{router: r, opts: opts}
	s.registerRoutes()
	return s
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting status server", zap.String("addr", addr))
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down status server")
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.opts.Port
}

// HandleError is the central error responder for every route.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
