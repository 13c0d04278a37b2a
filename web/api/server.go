// Package api serves batch history and live batch events over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/ordering"
	"github.com/hochfrequenz/docai-batch/internal/taskstore"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server
type Options struct {
	Addr           string
	AllowedOrigins []string
	Ordering       ordering.Config
	Logger         *zap.Logger
}

// Server is the HTTP API server
type Server struct {
	store    taskstore.Store
	hub      *Hub
	ordering ordering.Config
	logger   *zap.Logger
	router   chi.Router
	addr     string
}

// NewServer creates a new API server. hub may be nil when no live events are published.
func NewServer(store taskstore.Store, hub *Hub, opts Options) *Server {
	s := &Server{
		store:    store,
		hub:      hub,
		ordering: opts.Ordering,
		logger:   logging.OrNop(opts.Logger),
		addr:     opts.Addr,
	}
	s.setupRoutes(opts.AllowedOrigins)
	return s
}

func (s *Server) setupRoutes(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.healthHandler)
	r.Route("/api/batches", func(r chi.Router) {
		r.Get("/", s.listBatchesHandler)
		r.Get("/{id}", s.getBatchHandler)
		r.Get("/{id}/order", s.orderHandler)
		r.Get("/{id}/failures", s.failuresHandler)
	})
	if s.hub != nil {
		r.Get("/api/events", s.hub.ServeHTTP)
	}

	s.router = r
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
