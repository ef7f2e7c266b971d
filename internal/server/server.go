// Package server assembles the finreport HTTP service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/finreport/internal/catalog"
	"github.com/rumor-ml/commons.systems/finreport/internal/config"
	"github.com/rumor-ml/commons.systems/finreport/internal/handlers"
	"github.com/rumor-ml/commons.systems/finreport/internal/middleware"
	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
	"github.com/rumor-ml/commons.systems/finreport/internal/store"
	"github.com/rumor-ml/commons.systems/finreport/internal/store/firestore"
	"github.com/rumor-ml/commons.systems/finreport/internal/streaming"
)

// Deps are the collaborators a Server is built from
type Deps struct {
	Stores     handlers.StoreFactory
	Verifier   middleware.TokenVerifier
	Categories handlers.Categories
	Logger     zerolog.Logger
	// Close releases the backing clients; may be nil
	Close func() error
}

// Server represents the finreport API server
type Server struct {
	api     *handlers.Handler
	cfg     config.Config
	deps    Deps
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a server backed by Firestore and Firebase Auth
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	if err := cfg.RequireFirebase(); err != nil {
		return nil, err
	}
	categories, err := catalog.Load(cfg.CategoriesFile)
	if err != nil {
		return nil, err
	}
	fsClient, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("project", fsClient.ProjectID()).
		Int("categories", categories.Len()).
		Msg("firestore client ready")

	return NewWithDeps(cfg, Deps{
		Stores:     func(userID string) store.Store { return fsClient.ForUser(userID) },
		Verifier:   fsClient.Auth,
		Categories: categories,
		Logger:     log,
		Close:      fsClient.Close,
	})
}

// NewWithDeps creates a server over explicit collaborators
func NewWithDeps(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Stores == nil || deps.Verifier == nil || deps.Categories == nil {
		return nil, fmt.Errorf("server requires stores, verifier and categories")
	}
	hub := streaming.NewStreamHub()
	hub.SetLogger(deps.Logger)

	s := &Server{
		api: handlers.New(deps.Stores, deps.Categories, pipeline.New(registry.MustNew(), nil), hub, handlers.Options{
			MaxUploadBytes:    cfg.MaxUploadBytes,
			ReferenceCacheTTL: cfg.ReferenceCacheTTL,
		}),
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.setupRoutes()

	s.handler = middleware.RequestLogger(deps.Logger)(middleware.CORS(cfg.AllowedOrigin)(s.mux))
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	auth := middleware.NewAuthMiddleware(s.deps.Verifier)
	protect := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, auth.RequireAuth(h))
	}

	protect("GET /api/categories", s.api.ListCategories)

	protect("POST /api/imports/preview", s.api.PreviewImport)
	protect("POST /api/imports", s.api.CommitImport)
	protect("GET /api/imports", s.api.ListImports)
	protect("GET /api/imports/{id}", s.api.GetImport)
	protect("GET /api/imports/{id}/events", s.api.ImportEvents)

	protect("GET /api/periods", s.api.ListPeriods)
	protect("POST /api/periods", s.api.CreatePeriod)
	protect("GET /api/periods/{id}", s.api.GetPeriod)
	protect("DELETE /api/periods/{id}", s.api.DeletePeriod)
	protect("POST /api/periods/{id}/close", s.api.ClosePeriod)
	protect("GET /api/periods/{id}/report", s.api.Report)
	protect("GET /api/periods/{id}/entries", s.api.ListEntries)
	protect("POST /api/periods/{id}/entries", s.api.AddEntry)
	protect("PUT /api/periods/{id}/entries/{entryID}", s.api.UpdateEntry)
	protect("DELETE /api/periods/{id}/entries/{entryID}", s.api.DeleteEntry)

	protect("GET /api/reports/trend", s.api.Trend)

	// Static files for frontend (when deployed together)
	s.mux.Handle("GET /", http.FileServer(http.Dir("./dist")))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address
func (s *Server) Addr() string {
	return ":" + s.cfg.Port
}

// Close waits for background commits, then closes the server resources
func (s *Server) Close() error {
	s.api.Wait()
	if s.deps.Close == nil {
		return nil
	}
	return s.deps.Close()
}
