// Package graph implements the task graph: a DAG of subtasks linked by
// dependsOn, plus the readiness/skip/completion predicates the executor
// drives against it.
package graph

import (
	"fmt"
	"time"

	"github.com/taskgraphd/taskgraph/core"
)

// Status is a TaskNode's place in its state machine.
//
//	pending --ready & dispatched--> running --ok--> done
//	              |                      `--err--> failed
//	              `--ancestor failed/abort--> skipped
//
// done, failed, and skipped are terminal; no node transitions out of a
// terminal status.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether s is one of done, failed, skipped.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// NodeConfig carries per-node overrides. Currently only a retry count:
// zero means "call the agent once, no retry wrapping"; N > 0 means
// "N+1 total attempts" at the executor layer.
type NodeConfig struct {
	Retries int
}

// Result is the tagged union a node's agent call produces: exactly one
// of OK or Err is meaningful, distinguished by Ok.
type Result struct {
	Ok     bool
	Output string
}

// OkResult builds a successful TaskResult.
func OkResult(output string) Result { return Result{Ok: true, Output: output} }

// ErrResult builds a failed TaskResult; Output is a diagnostic message,
// not the agent's real output.
func ErrResult(output string) Result { return Result{Ok: false, Output: output} }

// Node is one subtask in the graph.
type Node struct {
	ID        string
	Task      string
	DependsOn []string
	AssignTo  string // optional selector; "" means "any"
	Status    Status
	Result    *Result // nil until terminal
	Config    NodeConfig
}

// RawNode is the planner/wire-level shape a graph is built from, before
// validation promotes it into a Node with Status=pending.
type RawNode struct {
	ID        string
	Task      string
	DependsOn []string
	AssignTo  string
	Config    NodeConfig
}

// Graph is a goal plus an ordered, validated sequence of nodes and an
// optional synthesizer prompt for downstream result combination (not
// consumed by this module).
type Graph struct {
	Goal              string
	SynthesizerPrompt string
	Nodes             []*Node

	byID  map[string]*Node
	order []string          // node IDs in declared sequence order
	forward map[string][]string // dependency -> dependents, built once at Create
}

// Create validates the four graph invariants — pairwise-unique IDs, every
// dependsOn target declared, acyclic dependency relation, and sequence
// order carrying no semantic weight beyond iteration order for
// ReadyNodes — and builds the forward adjacency index SkipDownstream
// walks. On any violation it returns a *core.TaskError wrapping
// core.ErrGraphInvalid, naming the offending ID.
func Create(goal string, rawNodes []RawNode, synthesizerPrompt string) (*Graph, error) {
	if len(rawNodes) == 0 {
		return nil, core.NewTaskError("graph.Create", core.ErrGraphInvalid, "", "graph must contain at least one node", nil)
	}

	g := &Graph{
		Goal:              goal,
		SynthesizerPrompt: synthesizerPrompt,
		byID:              make(map[string]*Node, len(rawNodes)),
		forward:           make(map[string][]string),
	}

	for _, rn := range rawNodes {
		if rn.ID == "" {
			return nil, core.NewTaskError("graph.Create", core.ErrGraphInvalid, "", "node id must be non-empty", nil)
		}
		if _, dup := g.byID[rn.ID]; dup {
			return nil, core.NewTaskError("graph.Create", core.ErrGraphInvalid, rn.ID, fmt.Sprintf("duplicate node id %q", rn.ID), nil)
		}
		node := &Node{
			ID:        rn.ID,
			Task:      rn.Task,
			DependsOn: append([]string(nil), rn.DependsOn...),
			AssignTo:  rn.AssignTo,
			Status:    StatusPending,
			Config:    rn.Config,
		}
		g.byID[rn.ID] = node
		g.order = append(g.order, rn.ID)
		g.Nodes = append(g.Nodes, node)
	}

	for _, node := range g.Nodes {
		for _, dep := range node.DependsOn {
			if _, ok := g.byID[dep]; !ok {
				return nil, core.NewTaskError("graph.Create", core.ErrGraphInvalid, node.ID,
					fmt.Sprintf("dependency %q of node %q is not declared", dep, node.ID), nil)
			}
			g.forward[dep] = append(g.forward[dep], node.ID)
		}
	}

	if cycleID, ok := g.findCycle(); ok {
		return nil, core.NewTaskError("graph.Create", core.ErrGraphInvalid, cycleID,
			fmt.Sprintf("dependency cycle involves node %q", cycleID), nil)
	}

	return g, nil
}

// findCycle runs a standard DFS with a three-color "visiting" marker over
// the dependency relation (node -> its dependsOn), returning the ID of a
// node on a detected back-edge.
func (g *Graph) findCycle() (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		color[id] = gray
		for _, dep := range g.byID[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep, true
			case white:
				if back, found := visit(dep); found {
					return back, found
				}
			}
		}
		color[id] = black
		return "", false
	}

	for _, id := range g.order {
		if color[id] == white {
			if back, found := visit(id); found {
				return back, true
			}
		}
	}
	return "", false
}

// Node returns the node with the given ID, or nil if absent.
func (g *Graph) Node(id string) *Node {
	return g.byID[id]
}

// ReadyNodes returns nodes whose status is pending and whose every
// dependency is done, in declared sequence order — deterministic given
// the input.
func (g *Graph) ReadyNodes() []*Node {
	var ready []*Node
	for _, id := range g.order {
		node := g.byID[id]
		if node.Status != StatusPending {
			continue
		}
		if g.allDependenciesDone(node) {
			ready = append(ready, node)
		}
	}
	return ready
}

func (g *Graph) allDependenciesDone(node *Node) bool {
	for _, dep := range node.DependsOn {
		if g.byID[dep].Status != StatusDone {
			return false
		}
	}
	return true
}

// IsComplete reports whether every node has reached a terminal status.
func (g *Graph) IsComplete() bool {
	for _, node := range g.Nodes {
		if !node.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// SkipDownstream transitively marks every node still pending whose
// dependency closure contains failedID as skipped. Because the graph is
// acyclic by construction (enforced at Create), this is a single forward
// BFS over the adjacency index with no cycle guard needed. A node that is
// already running is left alone — its eventual result is recorded, but
// it does not unskip descendants already marked.
func (g *Graph) SkipDownstream(failedID string) {
	queue := append([]string(nil), g.forward[failedID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := g.byID[id]
		if node.Status != StatusPending {
			continue
		}
		node.Status = StatusSkipped
		queue = append(queue, g.forward[id]...)
	}
}

// ExecutionResult is the outcome of driving a Graph to completion: the
// graph itself (post-mutation), whether every node finished done, total
// wall-clock duration, and a snapshot mapping node ID to final Result.
type ExecutionResult struct {
	Graph         *Graph
	Success       bool
	TotalDuration time.Duration
	NodeResults   map[string]Result
}
