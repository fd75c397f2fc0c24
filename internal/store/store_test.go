package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db, storage.NewPostgresNodeRepository(db), storage.NewPostgresEdgeRepository(db)), mock
}

func nodeRow(id, projectID uuid.UUID, nodeType graph.NodeType, status graph.NodeStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "project_id", "case_id", "type", "status", "content", "properties",
		"source_type", "document_id", "message_id", "chunk_ids",
		"source_quote", "source_location", "embedding", "created_at", "updated_at",
	}).AddRow(
		id, projectID, nil, string(nodeType), string(status), "node content",
		nil, "chat", nil, nil, nil, "", "", nil, now, now,
	)
}

func TestApplyIntegration_SingleTransaction(t *testing.T) {
	st, mock := newTestStore(t)
	projectID := uuid.New()

	batch := IntegrationBatch{
		Edges: []*graph.Edge{
			{ProjectID: projectID, Type: graph.EdgeSupports, SourceNodeID: uuid.New(), TargetNodeID: uuid.New(), Provenance: "direct measurement of the claim", SourceType: graph.SourceIntegration},
		},
		Tensions: []TensionCreate{
			{
				Node: &graph.Node{ID: uuid.New(), ProjectID: projectID, Type: graph.NodeTension, Status: graph.StatusActive, Content: "conflict", SourceType: graph.SourceIntegration},
				Edges: []*graph.Edge{
					{ProjectID: projectID, Type: graph.EdgeContradicts, SourceNodeID: uuid.New(), TargetNodeID: uuid.New(), Provenance: "the figures disagree", SourceType: graph.SourceIntegration},
					{ProjectID: projectID, Type: graph.EdgeContradicts, SourceNodeID: uuid.New(), TargetNodeID: uuid.New(), Provenance: "the figures disagree", SourceType: graph.SourceIntegration},
				},
			},
		},
		StatusUpdates: []StatusUpdate{
			{
				Node:      &graph.Node{ID: uuid.New(), Type: graph.NodeClaim, Status: graph.StatusUnsubstantiated},
				NewStatus: graph.StatusSupported,
				Reason:    "new corroborating evidence",
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO edges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nodes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO edges").WillReturnResult(sqlmock.NewResult(0, 1))
	// Second tension edge hits the triple conflict and is skipped.
	mock.ExpectExec("INSERT INTO edges").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE nodes SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	patch, err := st.ApplyIntegration(context.Background(), batch)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	kinds := make([]graph.ChangeKind, len(patch))
	for i, c := range patch {
		kinds[i] = c.Kind
	}
	want := []graph.ChangeKind{
		graph.ChangeCreateEdge,
		graph.ChangeCreateTension,
		graph.ChangeCreateEdge,
		graph.ChangeUpdateNode,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d changes, got %d (%v)", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("change %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}

	update := patch[3]
	if update.OldStatus != graph.StatusUnsubstantiated || update.NewStatus != graph.StatusSupported {
		t.Errorf("status transition not audited: %+v", update)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestApplyIntegration_RollsBackOnFailure(t *testing.T) {
	st, mock := newTestStore(t)

	batch := IntegrationBatch{
		Tensions: []TensionCreate{
			{Node: &graph.Node{ID: uuid.New(), Type: graph.NodeTension, Status: graph.StatusActive, Content: "conflict"}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO nodes").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, err := st.ApplyIntegration(context.Background(), batch); err == nil {
		t.Error("expected failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDeleteNode_RemovesIncidentEdges(t *testing.T) {
	st, mock := newTestStore(t)
	nodeID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM nodes").
		WithArgs(nodeID).
		WillReturnRows(nodeRow(nodeID, uuid.New(), graph.NodeClaim, graph.StatusUnsubstantiated))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM edges").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM nodes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := st.DeleteNode(context.Background(), nodeID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 edges removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDeleteNode_NotFound(t *testing.T) {
	st, mock := newTestStore(t)
	nodeID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM nodes").
		WithArgs(nodeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.DeleteNode(context.Background(), nodeID)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestUpdateNodeStatus_RejectsInvalidStatus(t *testing.T) {
	st, mock := newTestStore(t)
	nodeID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM nodes").
		WithArgs(nodeID).
		WillReturnRows(nodeRow(nodeID, uuid.New(), graph.NodeClaim, graph.StatusUnsubstantiated))

	_, _, err := st.UpdateNodeStatus(context.Background(), nodeID, graph.StatusActive)
	if !errors.Is(err, ErrStatusRejected) {
		t.Errorf("expected ErrStatusRejected, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateNodeContent_RejectsBlank(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.UpdateNodeContent(context.Background(), uuid.New(), "   ", pgvector.Vector{})
	if !errors.Is(err, graph.ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestCreateEdge_RejectsForeignEndpoint(t *testing.T) {
	st, mock := newTestStore(t)
	projectID := uuid.New()
	sourceID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM nodes").
		WithArgs(sourceID).
		WillReturnRows(nodeRow(sourceID, uuid.New(), graph.NodeClaim, graph.StatusUnsubstantiated))

	spec := graph.EdgeSpec{
		ProjectID:    projectID,
		Type:         graph.EdgeSupports,
		SourceNodeID: sourceID,
		TargetNodeID: uuid.New(),
		Provenance:   "the measurement covers the claimed period",
		SourceType:   graph.SourceChat,
	}

	_, err := st.CreateEdge(context.Background(), spec)
	if !errors.Is(err, ErrForeignNode) {
		t.Errorf("expected ErrForeignNode, got %v", err)
	}
}

func TestLockProject_SerializesPerProject(t *testing.T) {
	st, _ := newTestStore(t)
	projectID := uuid.New()

	unlock := st.LockProject(projectID)

	acquired := make(chan struct{})
	go func() {
		u := st.LockProject(projectID)
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
