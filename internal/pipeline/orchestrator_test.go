package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/assembler"
	"github.com/todmy/knowledge-core/internal/delta"
	"github.com/todmy/knowledge-core/internal/extraction"
	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/integration"
	"github.com/todmy/knowledge-core/internal/storage"
	"github.com/todmy/knowledge-core/internal/store"
)

func TestResumePhase(t *testing.T) {
	tests := []struct {
		name        string
		status      storage.DocumentStatus
		failedPhase storage.Phase
		nodeCount   int
		want        storage.Phase
	}{
		{"pending starts at extraction", storage.DocumentPending, "", 0, storage.PhaseExtraction},
		{"extracting without nodes restarts extraction", storage.DocumentExtracting, "", 0, storage.PhaseExtraction},
		{"extracting with nodes moves to integration", storage.DocumentExtracting, "", 5, storage.PhaseIntegration},
		{"integrating resumes integration", storage.DocumentIntegrating, "", 5, storage.PhaseIntegration},
		{"failed extraction restarts extraction", storage.DocumentFailed, storage.PhaseExtraction, 0, storage.PhaseExtraction},
		{"failed integration resumes integration", storage.DocumentFailed, storage.PhaseIntegration, 5, storage.PhaseIntegration},
		{"failed extraction with surviving nodes skips to integration", storage.DocumentFailed, storage.PhaseExtraction, 3, storage.PhaseIntegration},
		{"completed does nothing", storage.DocumentCompleted, "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resumePhase(tt.status, tt.failedPhase, tt.nodeCount)
			if got != tt.want {
				t.Errorf("resumePhase(%s, %s, %d) = %q, want %q",
					tt.status, tt.failedPhase, tt.nodeCount, got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	o := New(nil, nil, nil, nil, nil, nil, nil, nil, nil, Config{})
	if o.config.PhaseTimeout != DefaultConfig().PhaseTimeout {
		t.Errorf("expected default phase timeout, got %v", o.config.PhaseTimeout)
	}
	if o.logger == nil {
		t.Error("expected a non-nil logger")
	}
}

type stubDocuments struct {
	storage.DocumentRepository
	doc      *storage.Document
	statuses []storage.DocumentStatus
	failures int
}

func (s *stubDocuments) GetByID(ctx context.Context, id uuid.UUID) (*storage.Document, error) {
	return s.doc, nil
}

func (s *stubDocuments) UpdateStatus(ctx context.Context, id uuid.UUID, status storage.DocumentStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubDocuments) MarkFailed(ctx context.Context, id uuid.UUID, phase storage.Phase, message string, partialNodeCount int) error {
	s.failures++
	return nil
}

type stubNodes struct {
	storage.NodeRepository
	docNodes       []*graph.Node
	onProjectCount func()
	removedSource  graph.SourceType
}

func (s *stubNodes) CountByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error) {
	return len(s.docNodes), nil
}

func (s *stubNodes) GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*graph.Node, error) {
	return s.docNodes, nil
}

func (s *stubNodes) CountByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) (int, error) {
	if s.onProjectCount != nil {
		s.onProjectCount()
	}
	return 0, nil
}

func (s *stubNodes) DeleteByDocumentSource(ctx context.Context, documentID uuid.UUID, source graph.SourceType) error {
	s.removedSource = source
	return nil
}

type stubEdges struct {
	storage.EdgeRepository
	cleanupCalls int
}

func (s *stubEdges) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error) {
	s.cleanupCalls++
	return 1, nil
}

type stubDeltas struct {
	storage.DeltaRepository
	created []*graph.Delta
}

func (s *stubDeltas) Create(ctx context.Context, d *graph.Delta) error {
	s.created = append(s.created, d)
	return nil
}

type failCompleter struct{ calls int }

func (c *failCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.calls++
	return "", errors.New("no completion expected")
}

func newTestOrchestrator(docs *stubDocuments, nodes *stubNodes, edges *stubEdges, deltas *stubDeltas, completer extraction.Completer) *Orchestrator {
	graphStore := store.New(nil, nodes, edges)
	return New(
		docs,
		nodes,
		edges,
		extraction.NewService(completer, nil, nodes, nil, docs, extraction.Config{}),
		assembler.New(nodes, edges, assembler.Config{}),
		integration.NewService(completer, nil, graphStore, zap.NewNop()),
		graphStore,
		delta.NewRecorder(deltas),
		zap.NewNop(),
		Config{},
	)
}

// Phase B must hold the project mutation lock from the moment the context
// is read until the reconciled batch is applied; a writer that sneaks in
// between would invalidate the context the proposals were built against.
func TestRunIntegration_HoldsLockAcrossAssembly(t *testing.T) {
	doc := &storage.Document{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Title:     "Research plan",
		Status:    storage.DocumentExtracting,
	}
	docs := &stubDocuments{doc: doc}
	nodes := &stubNodes{}
	edges := &stubEdges{}
	deltas := &stubDeltas{}
	completer := &failCompleter{}
	o := newTestOrchestrator(docs, nodes, edges, deltas, completer)

	var heldDuringAssembly bool
	nodes.onProjectCount = func() {
		acquired := make(chan struct{})
		go func() {
			unlock := o.graph.LockProject(doc.ProjectID)
			unlock()
			close(acquired)
		}()
		select {
		case <-acquired:
		case <-time.After(20 * time.Millisecond):
			heldDuringAssembly = true
		}
	}

	newNodes := []*graph.Node{{ID: uuid.New(), ProjectID: doc.ProjectID, Type: graph.NodeClaim}}
	if err := o.runIntegration(context.Background(), doc, newNodes); err != nil {
		t.Fatalf("runIntegration: %v", err)
	}

	if !heldDuringAssembly {
		t.Error("expected the project lock to be held while the context was assembled")
	}

	// With no existing graph the reconciliation call is skipped entirely,
	// but the extracted nodes still get their delta.
	if completer.calls != 0 {
		t.Errorf("expected no completion calls against an empty graph, got %d", completer.calls)
	}
	wantStatuses := []storage.DocumentStatus{storage.DocumentIntegrating, storage.DocumentCompleted}
	if !reflect.DeepEqual(docs.statuses, wantStatuses) {
		t.Errorf("statuses = %v, want %v", docs.statuses, wantStatuses)
	}
	if len(deltas.created) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas.created))
	}
	d := deltas.created[0]
	if d.Trigger != graph.TriggerDocumentUpload {
		t.Errorf("trigger = %q, want %q", d.Trigger, graph.TriggerDocumentUpload)
	}
	if d.DocumentID == nil || *d.DocumentID != doc.ID {
		t.Error("expected the delta to reference the document")
	}
	if d.Impact.NodesCreated != 1 || d.Impact.EdgesCreated != 0 {
		t.Errorf("impact = %d nodes, %d edges, want 1 and 0", d.Impact.NodesCreated, d.Impact.EdgesCreated)
	}

	// The lock must be free again once the run is over.
	unlock := o.graph.LockProject(doc.ProjectID)
	unlock()
}

// A document resumed after an integration failure keeps its prior-phase
// state visible: its surviving nodes are reused, partial integration output
// is cleared, and the status never dips back to extracting.
func TestRun_ResumeAfterIntegrationFailure(t *testing.T) {
	projectID := uuid.New()
	docID := uuid.New()
	doc := &storage.Document{
		ID:          docID,
		ProjectID:   projectID,
		Title:       "Research plan",
		Status:      storage.DocumentFailed,
		FailedPhase: storage.PhaseIntegration,
	}
	surviving := []*graph.Node{
		{ID: uuid.New(), ProjectID: projectID, Type: graph.NodeClaim},
		{ID: uuid.New(), ProjectID: projectID, Type: graph.NodeEvidence},
	}
	docs := &stubDocuments{doc: doc}
	nodes := &stubNodes{docNodes: surviving}
	edges := &stubEdges{}
	deltas := &stubDeltas{}
	completer := &failCompleter{}
	o := newTestOrchestrator(docs, nodes, edges, deltas, completer)

	if err := o.Run(context.Background(), docID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if completer.calls != 0 {
		t.Errorf("expected the existing node batch to be reused, got %d completion calls", completer.calls)
	}
	if edges.cleanupCalls != 1 {
		t.Errorf("expected partial integration edges removed once, got %d calls", edges.cleanupCalls)
	}
	if nodes.removedSource != graph.SourceIntegration {
		t.Errorf("removed node source = %q, want %q", nodes.removedSource, graph.SourceIntegration)
	}
	wantStatuses := []storage.DocumentStatus{storage.DocumentIntegrating, storage.DocumentCompleted}
	if !reflect.DeepEqual(docs.statuses, wantStatuses) {
		t.Errorf("statuses = %v, want %v", docs.statuses, wantStatuses)
	}
	if len(deltas.created) != 1 || deltas.created[0].Impact.NodesCreated != 2 {
		t.Errorf("expected one delta reporting 2 created nodes, got %+v", deltas.created)
	}
	if docs.failures != 0 {
		t.Errorf("expected no failure marks, got %d", docs.failures)
	}
}
