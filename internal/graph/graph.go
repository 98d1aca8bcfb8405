// Package graph implements the Graph Builder & Executor (spec.md §4.2):
// a registry of named nodes over the shared debate state, a pure routing
// function choosing the next node, and a single-pump executor that
// checkpoints after every node and checks for cooperative cancellation
// at node entry.
//
// Grounded on the teacher's internal/debate/topology/* package (its
// node-registry-plus-routing shape, generalized here from topology types
// like Star/Tree/GraphMesh to a single data-driven Node map) and
// internal/debate/orchestrator/adapter.go's conversion-pipeline style for
// wiring a fixed sequence of named stages together.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sreforge/debate-engine/internal/debatestate"
	"github.com/sreforge/debate-engine/internal/obs"
	"github.com/sreforge/debate-engine/internal/store"
)

// Node is one executable unit over the shared state (spec.md §4.2: "Node
// contract: async (state) -> delta"). Implementations MUST be
// effectively idempotent under checkpoint replay.
type Node interface {
	Name() string
	Run(ctx context.Context, s *debatestate.State) (debatestate.Delta, error)
}

// RouteFunc computes the next node name from the current state. A false
// second return means END (spec.md §4.2).
type RouteFunc func(*debatestate.State) (string, bool)

// ErrUnknownNode is returned when RouteFunc names a node the Graph never
// registered — a configuration error per spec.md §7.
var ErrUnknownNode = errors.New("graph: route function named an unregistered node")

// ErrCancelled is returned from Graph.Run when the context was cancelled
// before or during a node's execution.
var ErrCancelled = errors.New("graph: session cancelled")

// Graph is a named-node registry plus a routing function, executed by a
// single pump per spec.md §5's "single-threaded cooperative... per
// session" scheduling model.
type Graph struct {
	nodes map[string]Node
	route RouteFunc
	store store.SessionStore
}

// New constructs a Graph. store may be nil to run without checkpointing
// (used by tests).
func New(route RouteFunc, sessionStore store.SessionStore, nodes ...Node) *Graph {
	g := &Graph{nodes: make(map[string]Node, len(nodes)), route: route, store: sessionStore}
	for _, n := range nodes {
		g.nodes[n.Name()] = n
	}
	return g
}

// NodeNames returns the registered node names in lexicographic order,
// used for the tie-break spec.md §4.2 names ("Tie-break: lexicographic
// over node name") when a caller needs a deterministic listing.
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run pumps the graph from start until the routing function returns END
// or ctx is cancelled, checkpointing after every node completion
// (spec.md §4.2). It returns the name of the last node that ran.
func (g *Graph) Run(ctx context.Context, sessionID string, s *debatestate.State, start string) (string, error) {
	current := start
	logger := obs.Session(sessionID)

	for {
		if err := ctx.Err(); err != nil {
			g.checkpointCancelled(sessionID, s, current)
			return current, ErrCancelled
		}

		node, ok := g.nodes[current]
		if !ok {
			return current, fmt.Errorf("%w: %q", ErrUnknownNode, current)
		}

		delta, err := node.Run(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				logger.WithField("node", current).WithError(err).Warn("node execution cancelled")
				g.checkpointCancelled(sessionID, s, current)
				return current, ErrCancelled
			}
			logger.WithField("node", current).WithError(err).Error("node execution failed")
			return current, fmt.Errorf("graph: node %q failed: %w", current, err)
		}

		if err := s.Apply(delta); err != nil {
			logger.WithField("node", current).WithError(err).Error("invariant violation applying node delta")
			return current, fmt.Errorf("graph: node %q produced an invalid delta: %w", current, err)
		}

		next, more := g.route(s)
		if !more {
			if err := g.checkpoint(sessionID, s, current); err != nil {
				logger.WithField("node", current).WithError(err).Warn("checkpoint write failed")
			}
			return current, nil
		}
		if _, ok := g.nodes[next]; !ok {
			return current, fmt.Errorf("%w: %q", ErrUnknownNode, next)
		}

		// Checkpoint with next, not current: on resume the executor must
		// re-enter the node that hasn't run yet, not redundantly repeat the
		// one that just settled.
		if err := g.checkpoint(sessionID, s, next); err != nil {
			logger.WithField("node", next).WithError(err).Warn("checkpoint write failed")
		}

		if ctx.Err() != nil {
			g.checkpointCancelled(sessionID, s, next)
			return current, ErrCancelled
		}

		current = next
	}
}

// Resume loads the most recent checkpoint for sessionID, restores it
// into s, and resumes pumping from last_node (spec.md §4.2 "On recovery,
// the executor resumes from last_node with the snapshot").
func (g *Graph) Resume(ctx context.Context, sessionID string, s *debatestate.State) (string, error) {
	if g.store == nil {
		return "", errors.New("graph: cannot resume without a SessionStore")
	}
	cp, found, err := g.store.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("graph: loading checkpoint: %w", err)
	}
	if !found {
		return "", fmt.Errorf("graph: no checkpoint found for session %q", sessionID)
	}
	s.Restore(cp.Snapshot)
	return g.Run(ctx, sessionID, s, cp.LastNode)
}

func (g *Graph) checkpoint(sessionID string, s *debatestate.State, lastNode string) error {
	if g.store == nil {
		return nil
	}
	return g.store.SaveCheckpoint(context.Background(), sessionID, store.Checkpoint{
		SessionID: sessionID,
		Snapshot:  s.Snapshot(),
		LastNode:  lastNode,
	})
}

// checkpointCancelled writes a final checkpoint on cancellation; errors
// are logged, not propagated, since the cancellation signal itself takes
// priority (spec.md §5: "the executor catches it at the graph boundary,
// writes a final checkpoint").
func (g *Graph) checkpointCancelled(sessionID string, s *debatestate.State, lastNode string) {
	if err := g.checkpoint(sessionID, s, lastNode); err != nil {
		obs.Session(sessionID).WithError(err).Warn("checkpoint write failed during cancellation")
	}
}
