package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/store"
)

// advanceNode moves the route straight to the given phase, ignoring any
// work — enough to exercise Graph.Run's pump/checkpoint/route loop
// without dragging in the full agent/supervisor stack.
func advanceNode(name string, to debatestate.Phase) Node {
	return NewFuncNode(name, func(_ context.Context, _ *debatestate.State) (debatestate.Delta, error) {
		return debatestate.Delta{Route: &debatestate.RouteDelta{CurrentPhase: to}}, nil
	})
}

func linearRoute(order map[debatestate.Phase]string) RouteFunc {
	return func(s *debatestate.State) (string, bool) {
		n, ok := order[s.Route.CurrentPhase]
		if !ok {
			return "", false
		}
		return n, true
	}
}

func TestGraphRunPumpsThroughToEnd(t *testing.T) {
	order := map[debatestate.Phase]string{
		debatestate.PhaseInit:         "a",
		debatestate.PhaseAssetMapping: "b",
	}
	g := New(linearRoute(order), nil,
		advanceNode("a", debatestate.PhaseAssetMapping),
		advanceNode("b", debatestate.PhaseAnalysis),
	)

	s := debatestate.New()
	last, err := g.Run(context.Background(), "sess-1", s, "a")
	require.NoError(t, err)
	assert.Equal(t, "b", last)
	assert.Equal(t, debatestate.PhaseAnalysis, s.Route.CurrentPhase)
}

func TestGraphRunReturnsErrUnknownNodeForBadStart(t *testing.T) {
	g := New(linearRoute(nil), nil)
	s := debatestate.New()
	_, err := g.Run(context.Background(), "sess-1", s, "missing")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestGraphRunReturnsErrUnknownNodeForBadRouteTarget(t *testing.T) {
	route := func(*debatestate.State) (string, bool) { return "nonexistent", true }
	g := New(route, nil, advanceNode("a", debatestate.PhaseAssetMapping))
	s := debatestate.New()
	_, err := g.Run(context.Background(), "sess-1", s, "a")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestGraphRunCheckpointsAfterEveryNode(t *testing.T) {
	order := map[debatestate.Phase]string{
		debatestate.PhaseInit:         "a",
		debatestate.PhaseAssetMapping: "b",
	}
	mem := store.NewMemoryStore()
	g := New(linearRoute(order), mem,
		advanceNode("a", debatestate.PhaseAssetMapping),
		advanceNode("b", debatestate.PhaseAnalysis),
	)

	s := debatestate.New()
	_, err := g.Run(context.Background(), "sess-1", s, "a")
	require.NoError(t, err)

	cp, found, err := mem.LoadCheckpoint(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", cp.LastNode)
	assert.Equal(t, debatestate.PhaseAnalysis, cp.Snapshot.Route.CurrentPhase)
}

func TestGraphRunStopsOnCancelledContext(t *testing.T) {
	order := map[debatestate.Phase]string{
		debatestate.PhaseInit:         "a",
		debatestate.PhaseAssetMapping: "b",
	}
	g := New(linearRoute(order), nil,
		advanceNode("a", debatestate.PhaseAssetMapping),
		advanceNode("b", debatestate.PhaseAnalysis),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := debatestate.New()
	_, err := g.Run(ctx, "sess-1", s, "a")
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestGraphResumeContinuesFromLastCheckpoint(t *testing.T) {
	order := map[debatestate.Phase]string{
		debatestate.PhaseAssetMapping: "b",
	}
	mem := store.NewMemoryStore()
	g := New(linearRoute(order), mem, advanceNode("b", debatestate.PhaseAnalysis))

	require.NoError(t, mem.SaveCheckpoint(context.Background(), "sess-1", store.Checkpoint{
		SessionID: "sess-1",
		LastNode:  "b",
		Snapshot:  debatestate.Snapshot{Route: debatestate.Route{CurrentPhase: debatestate.PhaseAssetMapping}},
	}))

	s := debatestate.New()
	last, err := g.Resume(context.Background(), "sess-1", s)
	require.NoError(t, err)
	assert.Equal(t, "b", last)
	assert.Equal(t, debatestate.PhaseAnalysis, s.Route.CurrentPhase)
}

func TestGraphRunCheckpointsNextNodeNotJustCompletedNode(t *testing.T) {
	order := map[debatestate.Phase]string{
		debatestate.PhaseInit:         "a",
		debatestate.PhaseAssetMapping: "b",
		debatestate.PhaseAnalysis:     "c",
	}
	mem := store.NewMemoryStore()

	var checkpointedAfterA string
	g := New(linearRoute(order), mem,
		NewFuncNode("a", func(_ context.Context, _ *debatestate.State) (debatestate.Delta, error) {
			return debatestate.Delta{Route: &debatestate.RouteDelta{CurrentPhase: debatestate.PhaseAssetMapping}}, nil
		}),
		NewFuncNode("b", func(_ context.Context, _ *debatestate.State) (debatestate.Delta, error) {
			cp, found, err := mem.LoadCheckpoint(context.Background(), "sess-1")
			require.NoError(t, err)
			require.True(t, found)
			checkpointedAfterA = cp.LastNode
			return debatestate.Delta{Route: &debatestate.RouteDelta{CurrentPhase: debatestate.PhaseAnalysis}}, nil
		}),
		advanceNode("c", debatestate.PhaseCritique),
	)

	s := debatestate.New()
	_, err := g.Run(context.Background(), "sess-1", s, "a")
	require.NoError(t, err)

	// At the instant node "b" runs, the checkpoint written after "a"
	// settled must already name "b" (the node about to run), not "a"
	// (the node that just finished).
	assert.Equal(t, "b", checkpointedAfterA)
}

func TestGraphRunReclassifiesCancellationFromNodeError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := store.NewMemoryStore()
	g := New(linearRoute(nil), mem,
		NewFuncNode("a", func(_ context.Context, _ *debatestate.State) (debatestate.Delta, error) {
			cancel()
			return debatestate.Delta{}, context.Canceled
		}),
	)

	s := debatestate.New()
	last, err := g.Run(ctx, "sess-1", s, "a")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "a", last)

	_, found, loadErr := mem.LoadCheckpoint(context.Background(), "sess-1")
	require.NoError(t, loadErr)
	assert.True(t, found, "cancellation must still write a checkpoint")
}

func TestGraphResumeErrorsWithoutCheckpoint(t *testing.T) {
	mem := store.NewMemoryStore()
	g := New(linearRoute(nil), mem)
	s := debatestate.New()
	_, err := g.Resume(context.Background(), "sess-1", s)
	assert.Error(t, err)
}

func TestNodeNamesAreSortedLexicographically(t *testing.T) {
	g := New(linearRoute(nil), nil,
		advanceNode("verify", debatestate.PhaseReport),
		advanceNode("aggregate", debatestate.PhaseAnalysis),
		advanceNode("judge", debatestate.PhaseVerification),
	)
	assert.Equal(t, []string{"aggregate", "judge", "verify"}, g.NodeNames())
}
