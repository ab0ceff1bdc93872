package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// maxSubmitBytes bounds the POST /api/jobs body.
const maxSubmitBytes = 1 << 20

// StatusFunc reports daemon status for GET /api/status.
type StatusFunc func(ctx context.Context) DaemonStatus

// ServerOptions configures the HTTP API.
type ServerOptions struct {
	Bind   string
	Token  string
	Jobs   *JobService
	Status StatusFunc
	Logger *slog.Logger
}

// Server serves the status API.
type Server struct {
	bind    string
	logger  *slog.Logger
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

// NewServer builds the router. It returns nil when no bind address is set.
func NewServer(opts ServerOptions) *Server {
	bind := strings.TrimSpace(opts.Bind)
	if bind == "" {
		return nil
	}
	logger := logging.NewComponentLogger(opts.Logger, "api-server")
	handler := NewHandler(opts.Jobs, opts.Status, opts.Token, logger)
	return &Server{
		bind:    bind,
		logger:  logger,
		handler: handler,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// NewHandler returns the API routes.
func NewHandler(jobs *JobService, status StatusFunc, token string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handlers{jobs: jobs, status: status, logger: logger}
	router := mux.NewRouter()
	routes := router.PathPrefix("/api").Subrouter()
	routes.Use(authMiddleware(token))
	routes.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	routes.HandleFunc("/jobs", h.handleListJobs).Methods(http.MethodGet)
	routes.HandleFunc("/jobs", h.handleSubmit).Methods(http.MethodPost)
	routes.HandleFunc("/jobs/{id}", h.handleJob).Methods(http.MethodGet)
	routes.HandleFunc("/jobs/{id}/audit", h.handleAudit).Methods(http.MethodGet)
	routes.HandleFunc("/jobs/{id}/cancel", h.handleCancel).Methods(http.MethodPost)
	routes.HandleFunc("/jobs/{id}/retry", h.handleRetry).Methods(http.MethodPost)
	routes.HandleFunc("/episodes/{id}", h.handleEpisode).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"}, logger)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"}, logger)
	})
	return router
}

// Start listens on the bind address and serves until ctx ends or Stop.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	s.shutdown()
}

func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

type handlers struct {
	jobs   *JobService
	status StatusFunc
	logger *slog.Logger
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusOK, DaemonStatus{}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.status(r.Context()), h.logger)
}

func (h *handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, services.Wrap(services.ErrValidation, "api", "list", "invalid limit", err))
			return
		}
		limit = parsed
	}
	var statuses []string
	for _, value := range query["status"] {
		statuses = append(statuses, strings.Split(value, ",")...)
	}
	jobs, err := h.jobs.List(r.Context(), ListQuery{
		Statuses:  statuses,
		EpisodeID: query.Get("episode"),
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs}, h.logger)
}

func (h *handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, services.Wrap(services.ErrValidation, "api", "submit", "invalid request body", err))
		return
	}
	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEpisodeID, job.EpisodeID),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	writeJSON(w, http.StatusCreated, JobResponse{Job: *job}, h.logger)
}

func (h *handlers) handleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Describe(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job == nil {
		h.writeError(w, jobNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: *job}, h.logger)
}

func (h *handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entries, err := h.jobs.Audit(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{JobID: id, Entries: entries}, h.logger)
}

func (h *handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: *job}, h.logger)
}

func (h *handlers) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Describe(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job == nil {
		h.writeError(w, jobNotFound(id))
		return
	}
	requeued, err := h.jobs.Retry(r.Context(), []string{id})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if requeued == 0 {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("job %s is %s or its episode has an active job", id, job.Status),
			Kind:  services.KindInvalidInput,
		}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, RetryResponse{Requeued: requeued}, h.logger)
}

func (h *handlers) handleEpisode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	episode, err := h.jobs.Episode(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if episode == nil {
		h.writeError(w, services.Wrap(services.ErrNotFound, "api", "episode", "episode "+id+" not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, EpisodeResponse{Episode: *episode}, h.logger)
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("api request failed", logging.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: services.Kind(err)}, h.logger)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrActiveJob):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrMissingContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
