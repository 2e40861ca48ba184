package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/relgraph/pkg/controller"
	"github.com/ritzau/relgraph/pkg/history"
	"github.com/ritzau/relgraph/pkg/initiator"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/ritzau/relgraph/pkg/pubsub"
)

//go:embed static/*
var staticFiles embed.FS

// Forwarder passes GET requests through to the backend.
type Forwarder interface {
	Forward(ctx context.Context, path string, query url.Values) (int, []byte, error)
}

// HistoryReader lists recent searches. *history.Store implements it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Search, error)
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	backend   Forwarder
	session   *controller.Controller
	publisher pubsub.Publisher
	history   HistoryReader
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHistory serves /api/history from h.
func WithHistory(h HistoryReader) ServerOption {
	return func(s *Server) {
		s.history = h
	}
}

// NewServer creates a new web server
func NewServer(backend Forwarder, session *controller.Controller, publisher pubsub.Publisher, opts ...ServerOption) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		backend:   backend,
		session:   session,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// Backend pass-through
	s.router.HandleFunc("/api/search", s.handleSearchProxy).Methods("GET")
	s.router.HandleFunc("/api/v1/et/search", s.handleEntitySearchProxy).Methods("GET")
	s.router.HandleFunc("/api/v1/srp/search", s.handleRelationshipSearchProxy).Methods("GET")

	// Session
	s.router.HandleFunc("/api/session", s.handleSession).Methods("GET")
	s.router.HandleFunc("/api/session/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/session/log", s.handleLog).Methods("GET")
	s.router.HandleFunc("/api/session/query", s.handleQuery).Methods("POST")
	s.router.HandleFunc("/api/session/select", s.handleSelect).Methods("POST")
	s.router.HandleFunc("/api/session/search", s.handleSearch).Methods("POST")
	s.router.HandleFunc("/api/session/edges", s.handleAddEdge).Methods("POST")
	s.router.HandleFunc("/api/session/reset", s.handleReset).Methods("POST")

	s.router.HandleFunc("/api/history", s.handleHistory).Methods("GET")

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost%s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down web server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !pubsub.KnownTopic(topic) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown topic %q", topic), "")
		return
	}
	pubsub.ServeSSE(w, r, s.publisher, topic)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Log())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Text  string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := s.session.SetQuery(r.Context(), req.Field, req.Text)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, controller.ErrUnknownField) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"field": t.Field, "token": t.Token})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		ID    string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cand, err := s.session.Select(req.Field, req.ID)
	switch {
	case errors.Is(err, controller.ErrUnknownField):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, controller.ErrUnknownCandidate):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), "")
	default:
		writeJSON(w, http.StatusOK, cand)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	job, err := s.session.Search(r.Context())

	var (
		ve *initiator.ValidationError
		ie *initiator.InitiationError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Error(), "")
	case errors.As(err, &ie):
		writeError(w, http.StatusBadGateway, ie.Error(), ie.Guidance())
	case errors.Is(err, controller.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), "")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"request_id": job.RequestID,
			"status":     job.Status,
			"start_id":   job.StartID,
			"end_id":     job.EndID,
			"websocket_server_info": map[string]any{
				"ip":   job.Channel.Host,
				"port": job.Channel.Port,
			},
		})
	}
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Label  string `json:"label"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := s.session.AddUserEdge(req.Source, req.Target, req.Label)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, controller.ErrUnknownNode) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, controller.ErrNotRunning) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = n
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Search{})
		return
	}
	searches, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logging.ErrorContext(r.Context(), "failed to read history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, searches)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	body := map[string]string{"error": msg}
	if detail != "" {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}
