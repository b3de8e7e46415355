package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/metrics"
	"github.com/lattice-run/coderunner/pkg/types"
)

// readyTimeout bounds the queue ping the readiness probe performs.
const readyTimeout = 2 * time.Second

// Server is the reference HTTP front end the orchestrator binary
// serves. spec.md marks HTTP framing as an external collaborator, but a
// runnable service needs one; this is it.
type Server struct {
	orchestrator *Orchestrator
	router       *mux.Router
}

// NewServer builds a Server wired to orchestrator, with routes mounted.
func NewServer(o *Orchestrator) *Server {
	s := &Server{orchestrator: o, router: mux.NewRouter()}
	s.routes()
	return s
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/submit/batch", s.handleSubmitBatch).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

type submitBatchRequest struct {
	Submissions []types.JobInput `json:"submissions"`
}

type submitBatchResponse struct {
	Tokens []string `json:"tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleSubmitBatch implements POST /submit/batch (spec.md §6): the
// whole batch is rejected on the first invalid element, and no tokens
// are returned in that case.
func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	if len(req.Submissions) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "submissions must be a non-empty list"})
		return
	}

	tokens, err := s.orchestrator.SubmitBatch(r.Context(), req.Submissions)
	if err != nil {
		logger := log.WithComponent("orchestrator")
		if errors.Is(err, types.ErrQueueUnavailable) {
			logger.Error().Err(err).Msg("submit/batch failed: queue unavailable")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		logger.Warn().Err(err).Msg("submit/batch rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, submitBatchResponse{Tokens: tokens})
}

// handleHealth implements GET /health: liveness only, no dependency on
// the queue or cluster being reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady implements GET /ready: probes the queue connection,
// distinct from liveness (§5 of SPEC_FULL.md).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if _, err := s.orchestrator.queue.Length(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStatus implements GET /status, wrapping queue_status().
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orchestrator.QueueStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
