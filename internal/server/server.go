// Package server exposes upload, chat and listing over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
)

// Server is the clausewise HTTP API.
type Server struct {
	cfg        *config.Config
	pipeline   *rag.Pipeline
	indexer    *indexer.Indexer
	mcp        http.Handler
	limiter    *userLimiter
	router     chi.Router
	httpServer *http.Server
}

// New creates the server. mcpHandler may be nil, in which case /mcp is not mounted.
func New(cfg *config.Config, pipeline *rag.Pipeline, idx *indexer.Indexer, mcpHandler http.Handler) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		indexer:  idx,
		mcp:      mcpHandler,
		limiter:  newUserLimiter(cfg.Server.ChatRatePerMin, cfg.Server.ChatBurst),
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}

	// CORS
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.Server.IdentityHeader, "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.identity)

		r.Post("/upload", s.handleUpload)
		r.Post("/chat", s.handleChat)
		r.Get("/available_pdfs", s.handleListPDFs)
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{name}", s.handleDeleteDocument)

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}
	})

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Server listening", "addr", s.cfg.Server.Addr, "identity_header", s.cfg.Server.IdentityHeader)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
