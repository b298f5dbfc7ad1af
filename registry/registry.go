// Package registry implements the agent registry: a named lookup of
// AgentAdapters plus a capability index.
package registry

import (
	"sync"

	"github.com/taskgraphd/taskgraph/core"
	"github.com/taskgraphd/taskgraph/graph"
)

// AgentAdapter is the capability interface an executable agent exposes.
// Execute must never raise for a normal task failure — it encodes
// failure as graph.ErrResult; unexpected panics are the executor's
// concern (wrapped into AGENT_EXECUTION_FAILED), not this interface's.
type AgentAdapter interface {
	Name() string
	Capabilities() []string
	Execute(node *graph.Node) graph.Result
}

// Registry is a mapping from agent name to adapter, plus a capability
// index. Register takes the write lock; Pick, First and List take the
// shared read lock, so concurrent reads do not block each other.
type Registry struct {
	mu           sync.RWMutex
	byName       map[string]AgentAdapter
	order        []string // registration order, for List()
	capabilities map[string][]string // capability -> agent names, in registration order
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName:       make(map[string]AgentAdapter),
		capabilities: make(map[string][]string),
	}
}

// Register adds agent, rejecting a name already present with
// core.ErrDuplicateRegistration.
func (r *Registry) Register(agent AgentAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.byName[name]; exists {
		return core.NewTaskError("registry.Register", core.ErrDuplicateRegistration, name,
			"agent name already registered", nil)
	}

	r.byName[name] = agent
	r.order = append(r.order, name)
	for _, cap := range agent.Capabilities() {
		r.capabilities[cap] = append(r.capabilities[cap], name)
	}
	return nil
}

// Pick resolves selector against name first, then capability. It returns
// nil if nothing matches — absence is a normal outcome here, not an
// error: the executor turns it into a "No agent available" error result
// for that node.
func (r *Registry) Pick(selector string) AgentAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if agent, ok := r.byName[selector]; ok {
		return agent
	}
	if names, ok := r.capabilities[selector]; ok && len(names) > 0 {
		return r.byName[names[0]]
	}
	return nil
}

// First returns the first registered agent in registration order, or
// nil if the registry is empty. Used by the executor when a node has
// no assignTo selector.
func (r *Registry) First() AgentAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil
	}
	return r.byName[r.order[0]]
}

// List returns every registered agent in registration order.
func (r *Registry) List() []AgentAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]AgentAdapter, len(r.order))
	for i, name := range r.order {
		agents[i] = r.byName[name]
	}
	return agents
}
