package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskgraphd/taskgraph/graph"
)

// HTTPAgent adapts a remote HTTP endpoint into an AgentAdapter: POST a
// JSON body, read a JSON response, surface transport/status failures as
// an error TaskResult rather than a raised error — Execute's contract
// never raises for a normal failure.
type HTTPAgent struct {
	AgentName         string
	AgentCapabilities []string
	URL               string
	client            *http.Client
}

// NewHTTPAgent returns an HTTPAgent calling url for every Execute, with a
// 30s default timeout.
func NewHTTPAgent(name string, capabilities []string, url string) *HTTPAgent {
	return &HTTPAgent{
		AgentName:         name,
		AgentCapabilities: capabilities,
		URL:               url,
		client:            &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *HTTPAgent) Name() string           { return a.AgentName }
func (a *HTTPAgent) Capabilities() []string { return a.AgentCapabilities }

type httpAgentRequest struct {
	Task string `json:"task"`
	ID   string `json:"id"`
}

type httpAgentResponse struct {
	Output string `json:"output"`
}

// Execute posts the node's task to the endpoint and returns ok/error
// based on the HTTP outcome; it never panics or returns a raw error.
func (a *HTTPAgent) Execute(node *graph.Node) graph.Result {
	ctx, cancel := context.WithTimeout(context.Background(), a.client.Timeout)
	defer cancel()

	body, err := json.Marshal(httpAgentRequest{Task: node.Task, ID: node.ID})
	if err != nil {
		return graph.ErrResult(fmt.Sprintf("marshaling request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return graph.ErrResult(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return graph.ErrResult(fmt.Sprintf("calling agent %q: %v", a.AgentName, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return graph.ErrResult(fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return graph.ErrResult(fmt.Sprintf("agent %q returned status %d: %s", a.AgentName, resp.StatusCode, string(respBody)))
	}

	var parsed httpAgentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return graph.ErrResult(fmt.Sprintf("parsing response: %v", err))
	}

	return graph.OkResult(parsed.Output)
}
