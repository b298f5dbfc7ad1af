// Package gateway implements the planner-only LLM channel: a thin HTTP
// client exposing chat(prompt, sessionKey) and classifying transport
// failures into the GATEWAY_* error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/taskgraphd/taskgraph/core"
)

// Client calls a gateway endpoint fronting an LLM.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 60s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient swaps the underlying *http.Client entirely (tests use
// this to point at an httptest.Server with a custom transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a Client targeting baseURL (e.g. "http://gateway:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Prompt     string `json:"prompt"`
	SessionKey string `json:"sessionKey"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat sends prompt under sessionKey and returns the gateway's textual
// response. Failures are classified into GATEWAY_TIMEOUT,
// GATEWAY_CONNECTION_FAILED, or GATEWAY_PROTOCOL_ERROR via
// core.GatewayErrorKind.
func (c *Client) Chat(ctx context.Context, prompt, sessionKey string) (string, error) {
	body, err := json.Marshal(chatRequest{Prompt: prompt, SessionKey: sessionKey})
	if err != nil {
		return "", core.NewTaskError("gateway.Chat", core.ErrGatewayProtocolError, sessionKey,
			"marshaling chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", core.NewTaskError("gateway.Chat", core.ErrGatewayProtocolError, sessionKey,
			"building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			timedOut = true
		}
		kind := core.GatewayErrorKind(timedOut, !timedOut)
		return "", core.NewTaskError("gateway.Chat", kind, sessionKey, "calling gateway", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewTaskError("gateway.Chat", core.ErrGatewayProtocolError, sessionKey,
			"reading gateway response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", core.NewTaskError("gateway.Chat", core.ErrGatewayProtocolError, sessionKey,
			fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", core.NewTaskError("gateway.Chat", core.ErrGatewayProtocolError, sessionKey,
			"parsing gateway response", err)
	}

	return parsed.Response, nil
}
