// Package server exposes the pipeline over HTTP to the UI and history layers.
// It is a thin boundary: one endpoint to ask a question, plus the knowledge
// graph reload and listing endpoints the editing UI needs.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/log"
	"github.com/smallnest/newsense-analyst/newsense"
	"github.com/smallnest/newsense-analyst/pipeline"
	"github.com/smallnest/newsense-analyst/resolver"
)

// Server handles the HTTP boundary around the pipeline.
type Server struct {
	orch   *pipeline.Orchestrator
	store  *kg.Store
	kgPath string
	logger log.Logger
}

// New creates a Server. kgPath is the knowledge graph source used by reload.
func New(orch *pipeline.Orchestrator, store *kg.Store, kgPath string, logger log.Logger) *Server {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Server{orch: orch, store: store, kgPath: kgPath, logger: logger}
}

// RegisterRoutes mounts all API routes on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/knowledge/reload", s.handleReload)
		r.Get("/knowledge/entries", s.handleEntries)
	})
}

type askRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Candidates []string `json:"candidates,omitempty"`
	Causes     []string `json:"causes,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question must not be empty"})
		return
	}

	answer, err := s.orch.Run(r.Context(), req.Question)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// writeTurnError maps the pipeline error taxonomy onto status codes.
// Resolution failures are recoverable by re-prompting, so the candidate list
// travels with the response.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	var (
		noMetric    *resolver.NoMetricError
		ambiguous   *resolver.AmbiguousMetricError
		conflicting *resolver.ConflictingDimensionError
		fetchErr    *newsense.FetchError
	)
	switch {
	case errors.As(err, &noMetric):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      noMetric.Error(),
			Candidates: noMetric.Suggestions,
		})
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      ambiguous.Error(),
			Candidates: ambiguous.CandidateIDs(),
		})
	case errors.As(err, &conflicting):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: conflicting.Error()})
	case errors.As(err, &fetchErr):
		causes := make([]string, len(fetchErr.Causes))
		for i, c := range fetchErr.Causes {
			causes[i] = c.Error()
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:  "data fetch failed, please retry",
			Causes: causes,
		})
	default:
		s.logger.Error("turn failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ReloadFile(s.kgPath); err != nil {
		var loadErr *kg.LoadError
		if errors.As(err, &loadErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": loadErr.Error(),
				"rows":  loadErr.Rows,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	snap := s.store.Snapshot()
	s.logger.Info("knowledge graph reloaded: %d entries", snap.Len())
	writeJSON(w, http.StatusOK, map[string]int{"entries": snap.Len()})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot().Entries())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
