package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraphd/taskgraph/core"
)

func TestCreateRejectsEmptyGraph(t *testing.T) {
	_, err := Create("goal", nil, "")
	assert.ErrorIs(t, err, core.ErrGraphInvalid)
}

func TestCreateRejectsDuplicateIDs(t *testing.T) {
	_, err := Create("goal", []RawNode{
		{ID: "a", Task: "do a"},
		{ID: "a", Task: "do a again"},
	}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGraphInvalid)

	var te *core.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "a", te.ID)
}

func TestCreateRejectsDanglingDependency(t *testing.T) {
	_, err := Create("goal", []RawNode{
		{ID: "a", Task: "do a", DependsOn: []string{"missing"}},
	}, "")
	assert.ErrorIs(t, err, core.ErrGraphInvalid)
}

func TestCreateRejectsCycle(t *testing.T) {
	_, err := Create("goal", []RawNode{
		{ID: "a", Task: "a", DependsOn: []string{"b"}},
		{ID: "b", Task: "b", DependsOn: []string{"c"}},
		{ID: "c", Task: "c", DependsOn: []string{"a"}},
	}, "")
	assert.ErrorIs(t, err, core.ErrGraphInvalid)
}

func TestCreateRejectsSelfReferenceAsCycle(t *testing.T) {
	_, err := Create("goal", []RawNode{
		{ID: "a", Task: "a", DependsOn: []string{"a"}},
	}, "")
	assert.ErrorIs(t, err, core.ErrGraphInvalid)
}

func TestCreateAcceptsValidDiamond(t *testing.T) {
	g, err := Create("goal", []RawNode{
		{ID: "a", Task: "root"},
		{ID: "b", Task: "left", DependsOn: []string{"a"}},
		{ID: "c", Task: "right", DependsOn: []string{"a"}},
		{ID: "d", Task: "join", DependsOn: []string{"b", "c"}},
	}, "combine results")
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)
	assert.Equal(t, "combine results", g.SynthesizerPrompt)
}

func TestReadyNodesReturnsOnlyRootsInitially(t *testing.T) {
	g := mustDiamond(t)
	ready := g.ReadyNodes()
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)
}

func TestReadyNodesDeterministicDeclaredOrder(t *testing.T) {
	g, err := Create("goal", []RawNode{
		{ID: "x", Task: "x"},
		{ID: "y", Task: "y"},
		{ID: "z", Task: "z"},
	}, "")
	require.NoError(t, err)

	ready := g.ReadyNodes()
	require.Len(t, ready, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{ready[0].ID, ready[1].ID, ready[2].ID})
}

func TestReadyNodesWaitsForAllDependencies(t *testing.T) {
	g := mustDiamond(t)
	g.Node("a").Status = StatusDone

	ready := g.ReadyNodes()
	ids := idsOf(ready)
	assert.ElementsMatch(t, []string{"b", "c"}, ids)

	g.Node("b").Status = StatusDone
	assert.Equal(t, []string{"c"}, idsOf(g.ReadyNodes())) // c still ready, d waits on both

	g.Node("c").Status = StatusDone
	ready = g.ReadyNodes()
	require.Len(t, ready, 1)
	assert.Equal(t, "d", ready[0].ID)
}

func TestIsCompleteFalseUntilAllTerminal(t *testing.T) {
	g := mustDiamond(t)
	assert.False(t, g.IsComplete())

	for _, n := range g.Nodes {
		n.Status = StatusDone
	}
	assert.True(t, g.IsComplete())
}

func TestIsCompleteTrueWithMixOfTerminalStatuses(t *testing.T) {
	g := mustDiamond(t)
	g.Node("a").Status = StatusFailed
	g.SkipDownstream("a")
	assert.True(t, g.IsComplete())
}

func TestSkipDownstreamMarksTransitiveDescendantsOnly(t *testing.T) {
	g := mustDiamond(t)
	g.Node("a").Status = StatusFailed

	g.SkipDownstream("a")

	assert.Equal(t, StatusSkipped, g.Node("b").Status)
	assert.Equal(t, StatusSkipped, g.Node("c").Status)
	assert.Equal(t, StatusSkipped, g.Node("d").Status)
	assert.Equal(t, StatusFailed, g.Node("a").Status) // failed node itself untouched
}

func TestSkipDownstreamDoesNotTouchUnrelatedBranch(t *testing.T) {
	g, err := Create("goal", []RawNode{
		{ID: "a", Task: "a"},
		{ID: "b", Task: "b", DependsOn: []string{"a"}},
		{ID: "c", Task: "c"}, // independent branch
	}, "")
	require.NoError(t, err)

	g.Node("a").Status = StatusFailed
	g.SkipDownstream("a")

	assert.Equal(t, StatusSkipped, g.Node("b").Status)
	assert.Equal(t, StatusPending, g.Node("c").Status)
}

func TestSkipDownstreamLeavesAlreadyTerminalNodesAlone(t *testing.T) {
	g := mustDiamond(t)
	g.Node("b").Status = StatusDone // already finished before a's sibling failure propagates
	g.Node("a").Status = StatusFailed

	g.SkipDownstream("a")

	assert.Equal(t, StatusDone, g.Node("b").Status)
	assert.Equal(t, StatusSkipped, g.Node("c").Status)
	assert.Equal(t, StatusSkipped, g.Node("d").Status)
}

func mustDiamond(t *testing.T) *Graph {
	t.Helper()
	g, err := Create("goal", []RawNode{
		{ID: "a", Task: "root"},
		{ID: "b", Task: "left", DependsOn: []string{"a"}},
		{ID: "c", Task: "right", DependsOn: []string{"a"}},
		{ID: "d", Task: "join", DependsOn: []string{"b", "c"}},
	}, "")
	require.NoError(t, err)
	return g
}

func idsOf(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
