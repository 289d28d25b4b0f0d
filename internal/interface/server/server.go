package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/app/config"
	"github.com/wassup-/textpod/internal/application/port/output"
	"github.com/wassup-/textpod/internal/application/service"
	"github.com/wassup-/textpod/internal/domain/repository"
)

// Server is the HTTP boundary of the note service. It owns no state of its
// own: every request goes straight to the repository, the search index or
// the capture orchestrator.
type Server struct {
	cfg     config.Config
	repo    repository.NoteRepository
	index   *service.SearchIndex
	capture *service.CaptureService
	store   output.ArtifactStore

	httpServer *http.Server
}

// New creates an HTTP server over the given collaborators.
func New(
	cfg config.Config,
	repo repository.NoteRepository,
	index *service.SearchIndex,
	capture *service.CaptureService,
	store output.ArtifactStore,
) *Server {
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		index:   index,
		capture: capture,
		store:   store,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notes", s.handleCreateNote)
	mux.HandleFunc("GET /notes", s.handleListNotes)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /attachments/", s.handleServeAttachment)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /notes/{day}/{seq}/attachments/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	app.GetLogger().Info("listening on http://%s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
