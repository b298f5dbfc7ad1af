// Command taskgraphd runs the planner→graph→executor pipeline behind a
// synchronous HTTP submission surface: it wires config → registry →
// planner → executor → httpapi and shuts down on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskgraphd/taskgraph/cache"
	"github.com/taskgraphd/taskgraph/core"
	"github.com/taskgraphd/taskgraph/executor"
	"github.com/taskgraphd/taskgraph/gateway"
	"github.com/taskgraphd/taskgraph/httpapi"
	"github.com/taskgraphd/taskgraph/planner"
	"github.com/taskgraphd/taskgraph/ratelimit"
	"github.com/taskgraphd/taskgraph/registry"
	"github.com/taskgraphd/taskgraph/retry"
	"github.com/taskgraphd/taskgraph/schema"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := cfg.Logger()

	reg := registry.New()
	// Real deployments register AgentAdapters here (registry.NewHTTPAgent
	// per downstream worker); a bare registry still serves runs whose
	// planner assigns no nodes, since Execute treats "no agent available"
	// as a per-node error result, not a startup failure.

	var plannerOpts []planner.Option
	if cfg.Gateway.URL != "" {
		plannerOpts = append(plannerOpts, planner.WithGateway(gateway.New(cfg.Gateway.URL)))
	}
	if agent := reg.Pick("planner"); agent != nil {
		plannerOpts = append(plannerOpts, planner.WithPlannerAgent(agent))
	}
	plannerOpts = append(plannerOpts, planner.WithLogger(logger))

	telemetry := core.NoOpTelemetry()
	if cfg.Telemetry.Enabled {
		t, err := core.NewTelemetry(cfg.Name, cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("initializing telemetry: %v", err)
		}
		telemetry = t
		defer func() {
			if err := telemetry.Shutdown(context.Background()); err != nil {
				log.Printf("error shutting down telemetry: %v", err)
			}
		}()
	}
	plannerOpts = append(plannerOpts, planner.WithTelemetry(telemetry))
	p := planner.New(plannerOpts...)

	var c cache.Cache
	if cfg.Cache.Enabled {
		c = cache.NewMemoryStore(cfg.Cache.TTL)
	}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewIntervalGate(cfg.RateLimit.Interval())
	}

	exec := executor.New(reg, c, cfg.Cache.Enabled, limiter, cfg.RateLimit.Enabled, logger)
	exec.SetTelemetry(telemetry)

	validator, err := schema.Compile("submission.json", schema.SubmissionSchema)
	if err != nil {
		log.Fatalf("compiling submission schema: %v", err)
	}

	defaultRetry := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	server := httpapi.New(p, exec, validator, nil, cfg.Limits.MaxConcurrency, defaultRetry, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: server.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("received shutdown signal, stopping taskgraphd...")
		cancel()
		if err := httpapi.Shutdown(context.Background(), httpServer); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	}()

	log.Printf("taskgraphd listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	<-ctx.Done()
	log.Println("taskgraphd stopped gracefully")
}
