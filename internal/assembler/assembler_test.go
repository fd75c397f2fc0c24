package assembler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

// fakeNodeRepo implements only what the assembler touches; everything else
// panics through the embedded nil interface.
type fakeNodeRepo struct {
	storage.NodeRepository

	nodes   []*graph.Node
	similar map[uuid.UUID][]*storage.NodeWithSimilarity
}

func (f *fakeNodeRepo) CountByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) (int, error) {
	return len(f.nodes), nil
}

func (f *fakeNodeRepo) GetByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) ([]*graph.Node, error) {
	return f.nodes, nil
}

func (f *fakeNodeRepo) FindSimilar(ctx context.Context, projectID uuid.UUID, embedding pgvector.Vector, limit int, threshold float64, exclude *uuid.UUID) ([]*storage.NodeWithSimilarity, error) {
	// Keyed by the querying node's embedding identity via first element.
	for id, matches := range f.similar {
		_ = id
		return matches, nil
	}
	return nil, nil
}

type fakeEdgeRepo struct {
	storage.EdgeRepository

	edges []*graph.Edge
}

func (f *fakeEdgeRepo) GetAmong(ctx context.Context, nodeIDs []uuid.UUID) ([]*graph.Edge, error) {
	in := make(map[uuid.UUID]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		in[id] = true
	}
	var out []*graph.Edge
	for _, e := range f.edges {
		if in[e.SourceNodeID] && in[e.TargetNodeID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func makeNodes(n int) []*graph.Node {
	nodes := make([]*graph.Node, n)
	for i := range nodes {
		nodes[i] = &graph.Node{ID: uuid.New(), Type: graph.NodeClaim, Status: graph.StatusUnsubstantiated}
	}
	return nodes
}

func TestAssemble_EmptyGraph(t *testing.T) {
	asm := New(&fakeNodeRepo{}, &fakeEdgeRepo{}, DefaultConfig())

	assembled, err := asm.Assemble(context.Background(), uuid.New(), makeNodes(3), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if assembled.TotalNodeCount != 0 {
		t.Errorf("TotalNodeCount = %d, want 0", assembled.TotalNodeCount)
	}
	if len(assembled.Nodes) != 0 {
		t.Errorf("expected no context nodes, got %d", len(assembled.Nodes))
	}
}

func TestAssemble_SmallGraphReturnedWhole(t *testing.T) {
	existing := makeNodes(5)
	edges := []*graph.Edge{
		{ID: uuid.New(), Type: graph.EdgeSupports, SourceNodeID: existing[0].ID, TargetNodeID: existing[1].ID},
		{ID: uuid.New(), Type: graph.EdgeContradicts, SourceNodeID: existing[2].ID, TargetNodeID: uuid.New()}, // endpoint outside selection
	}

	asm := New(&fakeNodeRepo{nodes: existing}, &fakeEdgeRepo{edges: edges}, Config{MaxNodes: 30})

	assembled, err := asm.Assemble(context.Background(), uuid.New(), makeNodes(2), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if assembled.TotalNodeCount != 5 {
		t.Errorf("TotalNodeCount = %d, want 5", assembled.TotalNodeCount)
	}
	if len(assembled.Nodes) != 5 {
		t.Errorf("expected whole graph, got %d nodes", len(assembled.Nodes))
	}
	if len(assembled.Edges) != 1 {
		t.Errorf("expected only the closed edge, got %d", len(assembled.Edges))
	}
}

func TestAssemble_LargeGraphCappedBySimilarity(t *testing.T) {
	existing := makeNodes(50)

	matches := make([]*storage.NodeWithSimilarity, 0, 10)
	for i := 0; i < 10; i++ {
		matches = append(matches, &storage.NodeWithSimilarity{Node: existing[i], Similarity: 0.9 - float64(i)*0.01})
	}

	repo := &fakeNodeRepo{
		nodes:   existing,
		similar: map[uuid.UUID][]*storage.NodeWithSimilarity{uuid.New(): matches},
	}

	asm := New(repo, &fakeEdgeRepo{}, Config{MaxNodes: 4, MinSimilarity: 0.6, PerNodeLimit: 10})

	newNode := &graph.Node{ID: uuid.New(), Embedding: pgvector.NewVector([]float32{0.1, 0.2})}
	assembled, err := asm.Assemble(context.Background(), uuid.New(), []*graph.Node{newNode}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if assembled.TotalNodeCount != 50 {
		t.Errorf("TotalNodeCount = %d, want the true total 50", assembled.TotalNodeCount)
	}
	if len(assembled.Nodes) != 4 {
		t.Errorf("expected cap of 4 nodes, got %d", len(assembled.Nodes))
	}
	// Cap keeps retrieval order, so the strongest matches survive.
	for i, node := range assembled.Nodes {
		if node.ID != existing[i].ID {
			t.Errorf("node %d: expected %s, got %s", i, existing[i].ID, node.ID)
		}
	}
}

func TestAssemble_NewNodesWithoutEmbeddingsSkipRetrieval(t *testing.T) {
	existing := makeNodes(50)
	repo := &fakeNodeRepo{nodes: existing}

	asm := New(repo, &fakeEdgeRepo{}, Config{MaxNodes: 4, MinSimilarity: 0.6, PerNodeLimit: 10})

	assembled, err := asm.Assemble(context.Background(), uuid.New(), makeNodes(2), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(assembled.Nodes) != 0 {
		t.Errorf("expected no retrieval without embeddings, got %d nodes", len(assembled.Nodes))
	}
	if assembled.TotalNodeCount != 50 {
		t.Errorf("TotalNodeCount = %d, want 50", assembled.TotalNodeCount)
	}
}
