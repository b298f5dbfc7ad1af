// Package executor implements the core scheduler: it drives a
// graph.Graph to a terminal state by repeatedly computing the ready set,
// dispatching a bounded batch concurrently, settling the batch, and
// propagating failure downstream.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taskgraphd/taskgraph/cache"
	"github.com/taskgraphd/taskgraph/core"
	"github.com/taskgraphd/taskgraph/graph"
	"github.com/taskgraphd/taskgraph/ratelimit"
	"github.com/taskgraphd/taskgraph/registry"
	"github.com/taskgraphd/taskgraph/retry"
)

// Options configures one Execute call.
type Options struct {
	MaxConcurrency int
	AbortSignal    <-chan struct{}
	OnNodeStart    func(id string)
	OnNodeEnd      func(id string, result graph.Result)
	RetryConfig    retry.Config
}

// Executor drives graphs to completion against a shared registry, cache,
// and rate limiter.
type Executor struct {
	registry  *registry.Registry
	cache     cache.Cache
	cacheOn   bool
	limiter   ratelimit.Limiter
	limiterOn bool
	logger    core.Logger
	telemetry *core.Telemetry
}

// New builds an Executor. cache/limiter may be nil when their respective
// "on" flag is false; the zero value of each flag is "disabled". Telemetry
// defaults to a no-op provider; set a real one with SetTelemetry.
func New(reg *registry.Registry, c cache.Cache, cacheEnabled bool, limiter ratelimit.Limiter, rateLimitEnabled bool, logger core.Logger) *Executor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Executor{
		registry:  reg,
		cache:     c,
		cacheOn:   cacheEnabled,
		limiter:   limiter,
		limiterOn: rateLimitEnabled,
		logger:    logger,
		telemetry: core.NoOpTelemetry(),
	}
}

// SetTelemetry attaches span/metric emission around Execute calls.
func (e *Executor) SetTelemetry(t *core.Telemetry) {
	e.telemetry = t
}

// Execute drives g until every node is terminal.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, opts Options) *graph.ExecutionResult {
	ctx, span := e.telemetry.StartSpan(ctx, "executor.Execute", attribute.Int("node_count", len(g.Nodes)))
	start := time.Now()
	defer func() {
		e.telemetry.RecordDuration(ctx, "taskgraph.executor.execute.duration_ms", time.Since(start))
		span.End()
	}()

	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}

	for !g.IsComplete() {
		if aborted(opts.AbortSignal) {
			for _, n := range g.Nodes {
				if n.Status == graph.StatusPending {
					n.Status = graph.StatusSkipped
				}
			}
			break
		}

		ready := g.ReadyNodes()
		if len(ready) == 0 {
			e.logger.Error("executor deadlock: no ready nodes but graph incomplete", nil)
			break
		}

		batch := ready
		if len(batch) > opts.MaxConcurrency {
			batch = batch[:opts.MaxConcurrency]
		}

		settled := e.dispatch(ctx, batch, opts)

		for _, s := range settled {
			switch {
			case s.result.Ok:
				s.node.Status = graph.StatusDone
				e.telemetry.Count(ctx, "taskgraph.executor.node.success")
			default:
				s.node.Status = graph.StatusFailed
				g.SkipDownstream(s.node.ID)
				e.telemetry.Count(ctx, "taskgraph.executor.node.failure")
			}
			s.node.Result = &s.result
			if opts.OnNodeEnd != nil {
				opts.OnNodeEnd(s.node.ID, s.result)
			}
		}
	}

	result := e.buildResult(g, start)
	if !result.Success {
		span.SetStatus(codes.Error, "one or more nodes did not complete successfully")
	}
	return result
}

func aborted(signal <-chan struct{}) bool {
	if signal == nil {
		return false
	}
	select {
	case <-signal:
		return true
	default:
		return false
	}
}

type settledNode struct {
	node   *graph.Node
	result graph.Result
}

// dispatch launches batch concurrently, bounded implicitly by its own
// length (the per-iteration batch cap is the concurrency bound), and
// waits for every node to settle.
func (e *Executor) dispatch(ctx context.Context, batch []*graph.Node, opts Options) []settledNode {
	settled := make([]settledNode, len(batch))
	var wg sync.WaitGroup

	for i, node := range batch {
		node.Status = graph.StatusRunning
		if opts.OnNodeStart != nil {
			opts.OnNodeStart(node.ID)
		}

		wg.Add(1)
		go func(i int, n *graph.Node) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("node execution panicked", map[string]interface{}{
						"nodeId": n.ID,
						"panic":  fmt.Sprintf("%v", r),
						"stack":  string(debug.Stack()),
					})
					settled[i] = settledNode{node: n, result: graph.ErrResult(
						fmt.Sprintf("agent execution failed: %v", r))}
				}
			}()
			settled[i] = settledNode{node: n, result: e.executeNode(ctx, n, opts.RetryConfig)}
		}(i, node)
	}

	wg.Wait()
	return settled
}

// executeNode is the per-node pipeline: resolve agent, cache check,
// rate-limit acquire, retry-wrapped call, cache write.
func (e *Executor) executeNode(ctx context.Context, node *graph.Node, retryCfg retry.Config) graph.Result {
	agent := e.resolveAgent(node)
	if agent == nil {
		return graph.ErrResult(fmt.Sprintf("No agent available for node %q", node.ID))
	}

	cacheKey := cache.Key(node.Task, agent.Name())
	if e.cacheOn {
		if value, ok := e.cache.Get(cacheKey); ok {
			return graph.OkResult(value)
		}
	}

	if e.limiterOn {
		if err := e.limiter.Acquire(ctx, agent.Name()); err != nil {
			return graph.ErrResult(fmt.Sprintf("rate limit acquire failed: %v", err))
		}
	}

	result := e.invoke(ctx, agent, node, retryCfg)

	if result.Ok && e.cacheOn {
		e.cache.Set(cacheKey, result.Output)
	}

	return result
}

func (e *Executor) resolveAgent(node *graph.Node) registry.AgentAdapter {
	if node.AssignTo != "" {
		return e.registry.Pick(node.AssignTo)
	}
	return e.registry.First()
}

// invoke calls the agent once, or wraps the call in retry.Do when the
// node requests retries (N > 0 retries means N+1 total attempts).
func (e *Executor) invoke(ctx context.Context, agent registry.AgentAdapter, node *graph.Node, retryCfg retry.Config) graph.Result {
	if node.Config.Retries <= 0 {
		return agent.Execute(node)
	}

	cfg := retryCfg
	cfg.MaxAttempts = node.Config.Retries + 1

	var last graph.Result
	err := retry.Do(ctx, cfg, func() error {
		last = agent.Execute(node)
		if !last.Ok {
			return fmt.Errorf("%s", last.Output)
		}
		return nil
	})
	if err != nil {
		return last
	}
	return last
}

func (e *Executor) buildResult(g *graph.Graph, start time.Time) *graph.ExecutionResult {
	success := true
	nodeResults := make(map[string]graph.Result, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Status != graph.StatusDone {
			success = false
		}
		if n.Result != nil {
			nodeResults[n.ID] = *n.Result
		} else {
			nodeResults[n.ID] = graph.ErrResult(fmt.Sprintf("node %q ended in status %q with no result", n.ID, n.Status))
		}
	}

	return &graph.ExecutionResult{
		Graph:         g,
		Success:       success,
		TotalDuration: time.Since(start),
		NodeResults:   nodeResults,
	}
}
