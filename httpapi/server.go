// Package httpapi is the synchronous HTTP submission surface: a single
// POST /v1/runs endpoint that plans a goal into a graph and drives it to
// completion before responding, plus GET /healthz.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskgraphd/taskgraph/core"
	"github.com/taskgraphd/taskgraph/executor"
	"github.com/taskgraphd/taskgraph/graph"
	"github.com/taskgraphd/taskgraph/planner"
	"github.com/taskgraphd/taskgraph/retry"
	"github.com/taskgraphd/taskgraph/schema"
)

// Server wires the submission surface together.
type Server struct {
	planner      *planner.Planner
	executor     *executor.Executor
	validator    *schema.Validator
	logger       core.Logger
	cors         *core.CORSConfig
	defaultMax   int
	defaultRetry retry.Config
	mux          *http.ServeMux
}

// New builds a Server. validator must be compiled against
// schema.SubmissionSchema. defaultRetry is the backoff policy applied to
// every node that requests retries; it comes from core.Config.Retry so a
// single deployment-wide policy governs BaseDelay/MaxDelay, while each
// node's own Config.Retries still controls whether/how many attempts run.
func New(p *planner.Planner, e *executor.Executor, validator *schema.Validator, cors *core.CORSConfig, defaultMaxConcurrency int, defaultRetry retry.Config, logger core.Logger) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cors == nil {
		cors = core.DefaultCORSConfig()
	}

	s := &Server{
		planner:      p,
		executor:     e,
		validator:    validator,
		logger:       logger,
		cors:         cors,
		defaultMax:   defaultMaxConcurrency,
		defaultRetry: defaultRetry,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/runs", s.handleSubmitRun)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// Handler returns the fully middleware-wrapped handler: CORS (outermost,
// so preflight never reaches recovery/logging) -> recovery -> logging ->
// mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = LoggingMiddleware(s.logger)(h)
	h = RecoveryMiddleware(s.logger)(h)
	h = core.CORSMiddleware(s.cors)(h)
	return h
}

type submitRunRequest struct {
	Goal           string `json:"goal"`
	MaxConcurrency int    `json:"maxConcurrency"`
	MaxSteps       int    `json:"maxSteps"`
}

type nodeResultDTO struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Ok     bool   `json:"ok"`
	Output string `json:"output"`
}

type submitRunResponse struct {
	Success       bool            `json:"success"`
	TotalDuration string          `json:"totalDuration"`
	Nodes         []nodeResultDTO `json:"nodes"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := readAll(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	if err := s.validator.Validate(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req submitRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	maxConcurrency := s.defaultMax
	if req.MaxConcurrency > 0 {
		maxConcurrency = req.MaxConcurrency
	}

	ctx := r.Context()
	g, err := s.planner.Plan(ctx, req.Goal)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	if req.MaxSteps > 0 && len(g.Nodes) > req.MaxSteps {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("planned graph has %d nodes, exceeding maxSteps=%d", len(g.Nodes), req.MaxSteps))
		return
	}

	result := s.executor.Execute(ctx, g, executor.Options{
		MaxConcurrency: maxConcurrency,
		RetryConfig:    s.defaultRetry,
	})

	writeJSON(w, http.StatusOK, toResponse(result))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func toResponse(result *graph.ExecutionResult) submitRunResponse {
	resp := submitRunResponse{
		Success:       result.Success,
		TotalDuration: result.TotalDuration.String(),
		Nodes:         make([]nodeResultDTO, 0, len(result.Graph.Nodes)),
	}
	for _, n := range result.Graph.Nodes {
		res := result.NodeResults[n.ID]
		resp.Nodes = append(resp.Nodes, nodeResultDTO{
			ID:     n.ID,
			Status: string(n.Status),
			Ok:     res.Ok,
			Output: res.Output,
		})
	}
	return resp
}

func readAll(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeTaskError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var te *core.TaskError
	if as, ok := err.(*core.TaskError); ok {
		te = as
		switch {
		case isKind(te, core.ErrParseFailed), isKind(te, core.ErrValidationFailed), isKind(te, core.ErrGraphInvalid):
			status = http.StatusUnprocessableEntity
		case isKind(te, core.ErrConfigMissing):
			status = http.StatusServiceUnavailable
		case isKind(te, core.ErrGatewayTimeout), isKind(te, core.ErrGatewayConnectionFailed), isKind(te, core.ErrGatewayProtocolError):
			status = http.StatusBadGateway
		}
	}
	writeError(w, status, err.Error())
}

func isKind(te *core.TaskError, kind error) bool {
	return te.Is(kind)
}

// shutdownTimeout bounds how long Shutdown waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Shutdown gracefully stops srv, waiting up to shutdownTimeout for
// in-flight requests to finish.
func Shutdown(ctx context.Context, srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
