package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraphd/taskgraph/cache"
	"github.com/taskgraphd/taskgraph/executor"
	"github.com/taskgraphd/taskgraph/graph"
	"github.com/taskgraphd/taskgraph/planner"
	"github.com/taskgraphd/taskgraph/ratelimit"
	"github.com/taskgraphd/taskgraph/registry"
	"github.com/taskgraphd/taskgraph/retry"
	"github.com/taskgraphd/taskgraph/schema"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(registry.NewMockAgent("planner-agent", nil, func(node *graph.Node) graph.Result {
		return graph.OkResult(`{"nodes":[{"id":"a","task":"step one"}]}`)
	})))

	p := planner.New(planner.WithPlannerAgent(reg.Pick("planner-agent")))
	exec := executor.New(reg, cache.NewMemoryStore(0), false, ratelimit.Noop{}, false, nil)

	v, err := schema.Compile("submission.json", schema.SubmissionSchema)
	require.NoError(t, err)

	return New(p, exec, v, nil, 4, retry.DefaultConfig(), nil)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRunRejectsInvalidPayload(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"goal":""}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRunRejectsWrongMethod(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitRunPlansAndExecutesSuccessfully(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"goal":"ship the feature"}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestSubmitRunRejectsZeroMaxSteps(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"goal":"ship it","maxSteps":0}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	// maxSteps:0 fails schema validation (minimum 1), not the maxSteps-exceeded branch.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRecoversFromPanickingDownstreamHandler(t *testing.T) {
	s := newTestServer(t)
	s.mux = newPanicMux()

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func newPanicMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return mux
}
