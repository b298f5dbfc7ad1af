// Package planner turns a free-form goal into a graph.Graph by prompting
// an LLM (either a registered "planner agent" or a gateway chat call),
// parsing its DAG JSON response, and handing the result to graph.Create.
// Agent existence is not checked here: a node's assignTo is resolved
// later, by the executor's registry lookup.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taskgraphd/taskgraph/core"
	"github.com/taskgraphd/taskgraph/gateway"
	"github.com/taskgraphd/taskgraph/graph"
	"github.com/taskgraphd/taskgraph/registry"
)

const systemPrompt = `You are a task planner. Given a goal, break it into a directed acyclic graph of subtasks.
Respond with ONLY a JSON object of the form:
{"nodes":[{"id":"string","task":"string","dependsOn":["string"],"assignTo":"string"}],"synthesizerPrompt":"string"}
dependsOn and assignTo are optional. Do not include any prose outside the JSON object.`

// maxLoggedResponsePrefix bounds how much of a raw, unparseable LLM
// response is carried into a PARSE_FAILED error's log context.
const maxLoggedResponsePrefix = 500

// Planner plans graphs from goals using exactly one of a planner
// AgentAdapter or a gateway.Client.
type Planner struct {
	agent     registry.AgentAdapter
	gateway   *gateway.Client
	roster    []string
	logger    core.Logger
	telemetry *core.Telemetry
}

// Option configures a Planner.
type Option func(*Planner)

// WithPlannerAgent sets the "planner agent" source mode: plan() invokes
// agent.Execute with a synthetic node carrying the constructed prompt.
func WithPlannerAgent(agent registry.AgentAdapter) Option {
	return func(p *Planner) { p.agent = agent }
}

// WithGateway sets the gateway source mode: plan() calls gateway.Chat
// with a fresh session key per call.
func WithGateway(client *gateway.Client) Option {
	return func(p *Planner) { p.gateway = client }
}

// WithAgentRoster supplies the names enumerated in the prompt so the LLM
// knows which agents it may assign nodes to via assignTo.
func WithAgentRoster(names []string) Option {
	return func(p *Planner) { p.roster = names }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger core.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithTelemetry attaches span/metric emission around Plan calls.
func WithTelemetry(t *core.Telemetry) Option {
	return func(p *Planner) { p.telemetry = t }
}

// New builds a Planner. Plan returns CONFIG_MISSING when neither
// WithPlannerAgent nor WithGateway was supplied; when both were, the
// planner agent is used and the gateway is not called.
func New(opts ...Option) *Planner {
	p := &Planner{logger: &core.NoOpLogger{}, telemetry: core.NoOpTelemetry()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var sessionCounter = newSessionKeySource()

// Plan builds the prompt, calls the configured LLM source, parses and
// validates the response, and hands it to graph.Create.
func (p *Planner) Plan(ctx context.Context, goal string) (*graph.Graph, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "planner.Plan")
	start := time.Now()
	defer func() {
		p.telemetry.RecordDuration(ctx, "taskgraph.planner.plan.duration_ms", time.Since(start))
		span.End()
	}()

	g, err := p.plan(ctx, goal)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.telemetry.Count(ctx, "taskgraph.planner.plan.errors", attribute.String("kind", core.ErrorKind(err)))
		return nil, err
	}
	p.telemetry.Count(ctx, "taskgraph.planner.plan.success")
	return g, nil
}

func (p *Planner) plan(ctx context.Context, goal string) (*graph.Graph, error) {
	if p.agent == nil && p.gateway == nil {
		return nil, core.NewTaskError("planner.Plan", core.ErrConfigMissing, "",
			"planner needs either a planner agent or a gateway client", nil)
	}

	prompt := p.buildPrompt(goal)

	raw, err := p.callLLM(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := p.parseResponse(raw)
	if err != nil {
		return nil, err
	}

	rawNodes, err := p.validate(parsed)
	if err != nil {
		return nil, err
	}

	return graph.Create(goal, rawNodes, parsed.SynthesizerPrompt)
}

func (p *Planner) buildPrompt(goal string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nGoal: ")
	b.WriteString(goal)
	if len(p.roster) > 0 {
		b.WriteString("\n\nAvailable agents: ")
		b.WriteString(strings.Join(p.roster, ", "))
	}
	return b.String()
}

func (p *Planner) callLLM(ctx context.Context, prompt string) (string, error) {
	if p.agent != nil {
		result := p.agent.Execute(&graph.Node{ID: "__plan__", Task: prompt})
		if !result.Ok {
			return "", core.NewTaskError("planner.Plan", core.ErrAgentExecutionFailed, "",
				result.Output, nil)
		}
		return result.Output, nil
	}

	resp, err := p.gateway.Chat(ctx, prompt, sessionCounter.next())
	if err != nil {
		return "", err
	}
	return resp, nil
}

type planResponse struct {
	Nodes             []planNode `json:"nodes"`
	SynthesizerPrompt string     `json:"synthesizerPrompt"`
}

type planNode struct {
	ID        string   `json:"id"`
	Task      string   `json:"task"`
	DependsOn []string `json:"dependsOn"`
	AssignTo  string   `json:"assignTo"`
}

// parseResponse strips at most one leading and one trailing fenced-code
// marker, trims whitespace, and unmarshals the remainder as JSON.
func (p *Planner) parseResponse(raw string) (*planResponse, error) {
	cleaned := stripFence(raw)

	var parsed planResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		prefix := raw
		if len(prefix) > maxLoggedResponsePrefix {
			prefix = prefix[:maxLoggedResponsePrefix]
		}
		p.logger.Warn("failed to parse planner response", map[string]interface{}{
			"error":           err.Error(),
			"response_prefix": prefix,
		})
		return nil, core.NewTaskError("planner.Plan", core.ErrParseFailed, "",
			fmt.Sprintf("malformed planner JSON: %v", err), err)
	}
	return &parsed, nil
}

// stripFence removes one optional leading and one optional trailing
// fenced-code-block marker (``` or ```json) and trims the remainder.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) == 0 {
		return s
	}

	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// validate checks structural requirements: non-empty node array, every
// node has non-empty id/task, dependsOn defaults to empty.
func (p *Planner) validate(parsed *planResponse) ([]graph.RawNode, error) {
	if len(parsed.Nodes) == 0 {
		return nil, core.NewTaskError("planner.Plan", core.ErrValidationFailed, "",
			"planner response contained no nodes", nil)
	}

	rawNodes := make([]graph.RawNode, 0, len(parsed.Nodes))
	for _, n := range parsed.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return nil, core.NewTaskError("planner.Plan", core.ErrValidationFailed, "",
				"node missing non-empty id", nil)
		}
		if strings.TrimSpace(n.Task) == "" {
			return nil, core.NewTaskError("planner.Plan", core.ErrValidationFailed, n.ID,
				"node missing non-empty task", nil)
		}
		rawNodes = append(rawNodes, graph.RawNode{
			ID:        n.ID,
			Task:      n.Task,
			DependsOn: n.DependsOn,
			AssignTo:  n.AssignTo,
		})
	}
	return rawNodes, nil
}
