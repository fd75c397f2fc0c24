package delta

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

type fakeDeltaRepo struct {
	storage.DeltaRepository

	created []*graph.Delta
}

func (f *fakeDeltaRepo) Create(ctx context.Context, d *graph.Delta) error {
	f.created = append(f.created, d)
	return nil
}

func TestRecord_ComputesImpact(t *testing.T) {
	repo := &fakeDeltaRepo{}
	recorder := NewRecorder(repo)

	projectID := uuid.New()
	docID := uuid.New()
	patch := graph.Patch{
		{Kind: graph.ChangeCreateNode, NodeID: uuid.New(), NodeType: graph.NodeClaim},
		{Kind: graph.ChangeCreateTension, NodeID: uuid.New(), NodeType: graph.NodeTension},
		{Kind: graph.ChangeCreateEdge, EdgeID: uuid.New(), EdgeType: graph.EdgeSupports},
		{Kind: graph.ChangeUpdateNode, NodeID: uuid.New(), NodeType: graph.NodeClaim},
	}

	d, err := recorder.Record(context.Background(), projectID, graph.TriggerDocumentUpload, &docID, nil, patch, "One tension surfaced.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected one persisted delta, got %d", len(repo.created))
	}
	if d.ProjectID != projectID || d.Trigger != graph.TriggerDocumentUpload {
		t.Errorf("unexpected delta header: %+v", d)
	}
	if d.DocumentID == nil || *d.DocumentID != docID {
		t.Error("expected document attribution")
	}
	if d.Impact.NodesCreated != 2 || d.Impact.EdgesCreated != 1 || d.Impact.NodesUpdated != 1 {
		t.Errorf("unexpected impact: %+v", d.Impact)
	}
	if d.Impact.TensionsSurfaced != 1 {
		t.Errorf("expected tension creation to count as surfaced, got %d", d.Impact.TensionsSurfaced)
	}
	if d.Narrative != "One tension surfaced." {
		t.Errorf("narrative overwritten: %q", d.Narrative)
	}
}

func TestRecord_DefaultNarrative(t *testing.T) {
	repo := &fakeDeltaRepo{}
	recorder := NewRecorder(repo)

	patch := graph.Patch{
		{Kind: graph.ChangeCreateNode, NodeID: uuid.New(), NodeType: graph.NodeClaim},
	}

	d, err := recorder.Record(context.Background(), uuid.New(), graph.TriggerChatEdit, nil, nil, patch, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Narrative == "" {
		t.Fatal("expected a generated narrative")
	}
	if !strings.Contains(d.Narrative, "1 nodes") {
		t.Errorf("expected counters in narrative, got %q", d.Narrative)
	}
}
