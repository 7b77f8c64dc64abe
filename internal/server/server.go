// Package server provides the HTTP API for interactive merges: upload an
// archive, inspect its sheets, choose columns and download the result.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/history"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/profile"
)

// Config holds the listener and limits.
type Config struct {
	Host        string
	Port        int
	MaxUploadMB int64
	// SessionTTL closes sessions idle for longer; zero keeps them until deleted.
	SessionTTL time.Duration
}

// Server is the HTTP server for the sheetmerge API.
type Server struct {
	config   Config
	options  merge.Options
	profiles *profile.Manager
	history  *history.Log
	logger   *zap.Logger
	server   *http.Server

	mu       sync.Mutex
	sessions map[string]*entry
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server. profiles and hist may be nil.
func NewServer(cfg Config, opts merge.Options, profiles *profile.Manager, hist *history.Log, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 100
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Server{
		config:   cfg,
		options:  opts,
		profiles: profiles,
		history:  hist,
		logger:   logger,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/files", s.handleListFiles)
			r.Get("/columns", s.handleListColumns)
			r.Put("/selection", s.handleSetSelection)
			r.Get("/selection", s.handleGetSelection)
			r.Post("/output", s.handleGenerateOutput)
			r.Delete("/", s.handleDeleteSession)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.config.SessionTTL > 0 {
		go s.reapLoop()
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and closes every session.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.closeAll()
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.reap(now)
		}
	}
}
