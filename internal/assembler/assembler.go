// Package assembler selects the bounded, relevant subset of an existing
// project graph that the integration stage reconciles new nodes against.
package assembler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

// Config holds assembler tuning knobs.
type Config struct {
	// MaxNodes caps how many existing nodes the integration stage sees.
	MaxNodes int
	// MinSimilarity is the floor for similarity-ranked retrieval when the
	// graph exceeds MaxNodes. A tuning knob, not an invariant.
	MinSimilarity float64
	// PerNodeLimit is the top-K retrieved per new node before the union
	// is capped.
	PerNodeLimit int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		MaxNodes:      30,
		MinSimilarity: 0.6,
		PerNodeLimit:  10,
	}
}

// Context is the assembled slice of the existing graph, plus the true total
// so the integration model knows how much it is not seeing.
type Context struct {
	Nodes          []*graph.Node
	Edges          []*graph.Edge
	TotalNodeCount int
}

// Assembler selects reconciliation context from the graph store.
type Assembler struct {
	nodes  storage.NodeRepository
	edges  storage.EdgeRepository
	config Config
}

// New creates an Assembler.
func New(nodes storage.NodeRepository, edges storage.EdgeRepository, config Config) *Assembler {
	if config.MaxNodes <= 0 {
		config.MaxNodes = DefaultConfig().MaxNodes
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = DefaultConfig().MinSimilarity
	}
	if config.PerNodeLimit <= 0 {
		config.PerNodeLimit = DefaultConfig().PerNodeLimit
	}
	return &Assembler{nodes: nodes, edges: edges, config: config}
}

// Assemble returns the existing-graph subset relevant to the new node
// batch. Nodes originating from excludeDocument (the batch's own document)
// are never part of the existing graph. Small graphs are returned whole;
// larger graphs are cut down to the neighborhoods most similar to the new
// nodes.
func (a *Assembler) Assemble(ctx context.Context, projectID uuid.UUID, newNodes []*graph.Node, excludeDocument *uuid.UUID) (*Context, error) {
	total, err := a.nodes.CountByProjectID(ctx, projectID, excludeDocument)
	if err != nil {
		return nil, fmt.Errorf("count existing nodes: %w", err)
	}

	if total == 0 {
		return &Context{TotalNodeCount: 0}, nil
	}

	if total <= a.config.MaxNodes {
		nodes, err := a.nodes.GetByProjectID(ctx, projectID, excludeDocument)
		if err != nil {
			return nil, fmt.Errorf("load existing nodes: %w", err)
		}
		edges, err := a.edgesAmong(ctx, nodes)
		if err != nil {
			return nil, err
		}
		return &Context{Nodes: nodes, Edges: edges, TotalNodeCount: total}, nil
	}

	selected, err := a.selectBySimilarity(ctx, projectID, newNodes, excludeDocument)
	if err != nil {
		return nil, err
	}
	edges, err := a.edgesAmong(ctx, selected)
	if err != nil {
		return nil, err
	}
	return &Context{Nodes: selected, Edges: edges, TotalNodeCount: total}, nil
}

// selectBySimilarity retrieves, for each new node with an embedding, the
// most similar existing nodes, then unions and caps the result. The union
// preserves retrieval order so the cap keeps the strongest matches.
func (a *Assembler) selectBySimilarity(ctx context.Context, projectID uuid.UUID, newNodes []*graph.Node, excludeDocument *uuid.UUID) ([]*graph.Node, error) {
	seen := make(map[uuid.UUID]bool)
	var selected []*graph.Node

	for _, newNode := range newNodes {
		if newNode.Embedding.Slice() == nil {
			continue
		}

		matches, err := a.nodes.FindSimilar(ctx, projectID, newNode.Embedding, a.config.PerNodeLimit, a.config.MinSimilarity, excludeDocument)
		if err != nil {
			return nil, fmt.Errorf("similarity retrieval: %w", err)
		}

		for _, match := range matches {
			if seen[match.Node.ID] {
				continue
			}
			seen[match.Node.ID] = true
			selected = append(selected, match.Node)
		}
	}

	if len(selected) > a.config.MaxNodes {
		selected = selected[:a.config.MaxNodes]
	}
	return selected, nil
}

// edgesAmong returns only edges whose endpoints are both in the selection.
func (a *Assembler) edgesAmong(ctx context.Context, nodes []*graph.Node) ([]*graph.Edge, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}

	edges, err := a.edges.GetAmong(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load context edges: %w", err)
	}
	return edges, nil
}
