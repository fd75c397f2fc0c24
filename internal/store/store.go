// Package store provides the graph store: validated mutation primitives over
// nodes and edges, shared by the document pipeline and the external mutation
// API. Every write passes the validation gate before touching the database,
// and all Phase-B-style mutation on a project is serialized by a per-project
// lock.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrForeignNode    = errors.New("edge endpoint belongs to a different project")
	ErrStatusRejected = errors.New("status not valid for node type")
)

// Store implements the graph mutation primitives.
type Store struct {
	db    *sql.DB
	nodes storage.NodeRepository
	edges storage.EdgeRepository

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New creates a Store over the given repositories.
func New(db *sql.DB, nodes storage.NodeRepository, edges storage.EdgeRepository) *Store {
	return &Store{
		db:    db,
		nodes: nodes,
		edges: edges,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// LockProject acquires the project's exclusive mutation lock and returns the
// unlock function. Two concurrent integrations (or an integration and a chat
// edit) on the same project would otherwise both read a stale graph snapshot.
func (s *Store) LockProject(projectID uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateNode validates a node spec through the rejection path of the gate
// and persists it. Used by external edit paths; pipeline stages normalize
// their specs before batching instead.
func (s *Store) CreateNode(ctx context.Context, spec graph.NodeSpec) (*graph.Node, error) {
	if err := graph.ValidateNode(spec); err != nil {
		return nil, err
	}

	node := NodeFromSpec(spec)
	if err := s.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return node, nil
}

// CreateEdge validates an edge spec, confirms both endpoints exist and
// belong to the spec's project, and persists it. A duplicate (source,
// target, type) triple is rejected with storage.ErrDuplicateEdge.
func (s *Store) CreateEdge(ctx context.Context, spec graph.EdgeSpec) (*graph.Edge, error) {
	if err := graph.ValidateEdge(spec); err != nil {
		return nil, err
	}

	for _, endpoint := range []uuid.UUID{spec.SourceNodeID, spec.TargetNodeID} {
		node, err := s.nodes.GetByID(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("lookup endpoint %s: %w", endpoint, err)
		}
		if node == nil {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, endpoint)
		}
		if node.ProjectID != spec.ProjectID {
			return nil, ErrForeignNode
		}
	}

	edge := EdgeFromSpec(spec)
	if err := s.edges.Create(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// UpdateNodeStatus transitions a node's status after validating the new
// status against the node's type. Returns the updated node and the prior
// status for the caller's audit record.
func (s *Store) UpdateNodeStatus(ctx context.Context, id uuid.UUID, status graph.NodeStatus) (*graph.Node, graph.NodeStatus, error) {
	node, err := s.nodes.GetByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("lookup node: %w", err)
	}
	if node == nil {
		return nil, "", ErrNodeNotFound
	}

	if !graph.IsValidStatus(node.Type, status) {
		return nil, "", fmt.Errorf("%w: %q for %s", ErrStatusRejected, status, node.Type)
	}

	old := node.Status
	if err := s.nodes.UpdateStatus(ctx, id, status); err != nil {
		return nil, "", fmt.Errorf("update status: %w", err)
	}
	node.Status = status
	return node, old, nil
}

// UpdateNodeContent replaces a node's content and embedding. Blank content
// is rejected; the graph never holds empty nodes.
func (s *Store) UpdateNodeContent(ctx context.Context, id uuid.UUID, content string, embedding pgvector.Vector) (*graph.Node, error) {
	if strings.TrimSpace(content) == "" {
		return nil, graph.ErrEmptyContent
	}

	node, err := s.nodes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup node: %w", err)
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}

	if err := s.nodes.UpdateContent(ctx, id, content, embedding); err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}
	node.Content = content
	node.Embedding = embedding
	return node, nil
}

// DeleteNode removes a node and, in the same transaction, every edge
// incident to it. Returns the number of edges removed.
func (s *Store) DeleteNode(ctx context.Context, id uuid.UUID) (int, error) {
	node, err := s.nodes.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("lookup node: %w", err)
	}
	if node == nil {
		return 0, ErrNodeNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	removed, err := s.edges.DeleteByNodeIDTx(ctx, tx, id)
	if err != nil {
		return 0, fmt.Errorf("delete incident edges: %w", err)
	}
	if err := s.nodes.DeleteTx(ctx, tx, id); err != nil {
		return 0, fmt.Errorf("delete node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// StatusUpdate is one status transition to apply during integration.
type StatusUpdate struct {
	Node      *graph.Node
	NewStatus graph.NodeStatus
	Reason    string
}

// TensionCreate is a tension node together with the contradicts-edges that
// link it to the conflicting nodes.
type TensionCreate struct {
	Node  *graph.Node
	Edges []*graph.Edge
}

// IntegrationBatch is the coupled mutation set Phase B applies atomically.
type IntegrationBatch struct {
	Edges         []*graph.Edge
	Tensions      []TensionCreate
	StatusUpdates []StatusUpdate
}

// ApplyIntegration applies a Phase B batch inside a single transaction:
// proposed edges, tension nodes with their contradicts-edges, and status
// updates all succeed or all roll back. Edges whose triple already exists
// are skipped rather than aborting the batch. Returns the patch describing
// what was actually applied, in order.
func (s *Store) ApplyIntegration(ctx context.Context, batch IntegrationBatch) (graph.Patch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var patch graph.Patch

	for _, edge := range batch.Edges {
		created, err := s.edges.CreateIgnoreTx(ctx, tx, edge)
		if err != nil {
			return nil, fmt.Errorf("create edge: %w", err)
		}
		if created {
			patch = append(patch, graph.Change{
				Kind:     graph.ChangeCreateEdge,
				EdgeID:   edge.ID,
				EdgeType: edge.Type,
			})
		}
	}

	for _, tension := range batch.Tensions {
		if err := s.nodes.CreateTx(ctx, tx, tension.Node); err != nil {
			return nil, fmt.Errorf("create tension node: %w", err)
		}
		patch = append(patch, graph.Change{
			Kind:     graph.ChangeCreateTension,
			NodeID:   tension.Node.ID,
			NodeType: graph.NodeTension,
		})

		for _, edge := range tension.Edges {
			created, err := s.edges.CreateIgnoreTx(ctx, tx, edge)
			if err != nil {
				return nil, fmt.Errorf("create tension edge: %w", err)
			}
			if created {
				patch = append(patch, graph.Change{
					Kind:     graph.ChangeCreateEdge,
					EdgeID:   edge.ID,
					EdgeType: edge.Type,
				})
			}
		}
	}

	for _, update := range batch.StatusUpdates {
		if err := s.nodes.UpdateStatusTx(ctx, tx, update.Node.ID, update.NewStatus); err != nil {
			return nil, fmt.Errorf("update node status: %w", err)
		}
		patch = append(patch, graph.Change{
			Kind:      graph.ChangeUpdateNode,
			NodeID:    update.Node.ID,
			NodeType:  update.Node.Type,
			OldStatus: update.Node.Status,
			NewStatus: update.NewStatus,
			Reason:    update.Reason,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return patch, nil
}

// NodeFromSpec builds a Node record from a validated spec.
func NodeFromSpec(spec graph.NodeSpec) *graph.Node {
	return &graph.Node{
		ProjectID:      spec.ProjectID,
		CaseID:         spec.CaseID,
		Type:           spec.Type,
		Status:         spec.Status,
		Content:        spec.Content,
		Properties:     spec.Properties,
		SourceType:     spec.SourceType,
		DocumentID:     spec.DocumentID,
		MessageID:      spec.MessageID,
		ChunkIDs:       spec.ChunkIDs,
		SourceQuote:    spec.SourceQuote,
		SourceLocation: spec.SourceLocation,
		Embedding:      spec.Embedding,
	}
}

// EdgeFromSpec builds an Edge record from a validated spec.
func EdgeFromSpec(spec graph.EdgeSpec) *graph.Edge {
	return &graph.Edge{
		ProjectID:    spec.ProjectID,
		Type:         spec.Type,
		SourceNodeID: spec.SourceNodeID,
		TargetNodeID: spec.TargetNodeID,
		Strength:     spec.Strength,
		Provenance:   spec.Provenance,
		SourceType:   spec.SourceType,
		DocumentID:   spec.DocumentID,
		MessageID:    spec.MessageID,
	}
}
