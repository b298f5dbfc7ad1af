package registry

import (
	"sync"

	"github.com/taskgraphd/taskgraph/graph"
)

// MockAgent is a scriptable AgentAdapter for tests and local runs without
// a real gateway: it calls a user-supplied function instead of a wire
// protocol. Execute may be invoked concurrently by the executor, so the
// call counter is mutex-guarded.
type MockAgent struct {
	AgentName         string
	AgentCapabilities []string
	Fn                func(node *graph.Node) graph.Result

	mu    sync.Mutex
	calls int
}

// NewMockAgent returns a MockAgent that always invokes fn.
func NewMockAgent(name string, capabilities []string, fn func(node *graph.Node) graph.Result) *MockAgent {
	return &MockAgent{AgentName: name, AgentCapabilities: capabilities, Fn: fn}
}

func (a *MockAgent) Name() string           { return a.AgentName }
func (a *MockAgent) Capabilities() []string { return a.AgentCapabilities }

func (a *MockAgent) Execute(node *graph.Node) graph.Result {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.Fn(node)
}

// Calls returns how many times Execute has been invoked so far.
func (a *MockAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
