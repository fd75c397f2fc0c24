// Package integration implements Phase B of the document pipeline:
// reconciling newly extracted nodes against the assembled context of the
// existing project graph. Edge creation, tension creation, and status
// updates are applied in one transaction; gap nodes are independent facts
// and are created outside it. The caller holds the project's mutation lock
// across the whole run, so the context it assembled is still current when
// the proposals are applied.
package integration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/assembler"
	"github.com/todmy/knowledge-core/internal/extraction"
	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/store"
)

// Outcome is what one integration run changed, plus the narrative for the
// delta record.
type Outcome struct {
	Patch     graph.Patch
	Narrative string
	Skipped   bool
}

// Service runs Phase B for one document.
type Service struct {
	completer extraction.Completer
	embedder  extraction.Embedder
	store     *store.Store
	logger    *zap.Logger
}

// NewService creates an integration service. The embedder may be nil; gap
// nodes are then created without embeddings.
func NewService(completer extraction.Completer, embedder extraction.Embedder, st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: completer, embedder: embedder, store: st, logger: logger}
}

// Run reconciles the new node batch against the assembled context. The
// caller must hold the project's mutation lock from the moment the context
// was assembled until Run returns. With no existing graph there is nothing
// to reconcile against and the stage is skipped entirely.
func (s *Service) Run(ctx context.Context, doc DocumentRef, newNodes []*graph.Node, assembled *assembler.Context) (*Outcome, error) {
	if assembled.TotalNodeCount == 0 {
		return &Outcome{Skipped: true}, nil
	}

	raw, err := s.completer.Complete(ctx, buildPrompt(doc.Title, newNodes, assembled), 3000)
	if err != nil {
		return nil, fmt.Errorf("integration completion: %w", err)
	}

	props, err := parseProposals(raw)
	if err != nil {
		return nil, err
	}

	known := knownNodes(newNodes, assembled.Nodes)
	batch := s.buildBatch(doc, props, known)

	patch, err := s.store.ApplyIntegration(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("apply integration batch: %w", err)
	}

	// Gap nodes are independent facts, deliberately outside the
	// transaction: losing them does not corrupt the coupled mutations.
	gapChanges := s.createGapNodes(ctx, doc, props.Gaps)
	patch = append(patch, gapChanges...)

	return &Outcome{Patch: patch, Narrative: props.Narrative}, nil
}

// DocumentRef carries the document fields integration needs.
type DocumentRef struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Title     string
}

func knownNodes(groups ...[]*graph.Node) map[uuid.UUID]*graph.Node {
	known := make(map[uuid.UUID]*graph.Node)
	for _, group := range groups {
		for _, node := range group {
			known[node.ID] = node
		}
	}
	return known
}

// buildBatch validates every proposal and drops the ones that fail. The
// bias is precision over recall: a discarded proposal costs less trust than
// a wrong edge or a phantom tension.
func (s *Service) buildBatch(doc DocumentRef, props *proposals, known map[uuid.UUID]*graph.Node) store.IntegrationBatch {
	var batch store.IntegrationBatch

	for _, p := range props.Edges {
		edge, err := s.convertEdge(doc, p, known)
		if err != nil {
			s.logger.Debug("dropping edge proposal", zap.Error(err))
			continue
		}
		batch.Edges = append(batch.Edges, edge)
	}

	for _, p := range props.Tensions {
		tension, err := s.convertTension(doc, p, known)
		if err != nil {
			s.logger.Debug("dropping tension proposal", zap.Error(err))
			continue
		}
		batch.Tensions = append(batch.Tensions, *tension)
	}

	for _, p := range props.StatusUpdates {
		id, err := uuid.Parse(p.NodeID)
		if err != nil {
			continue
		}
		node, ok := known[id]
		if !ok {
			s.logger.Debug("dropping status update for unknown node", zap.String("node_id", p.NodeID))
			continue
		}
		newStatus := graph.NodeStatus(p.NewStatus)
		if !graph.IsValidStatus(node.Type, newStatus) || newStatus == node.Status {
			continue
		}
		batch.StatusUpdates = append(batch.StatusUpdates, store.StatusUpdate{
			Node:      node,
			NewStatus: newStatus,
			Reason:    p.Reason,
		})
	}

	return batch
}

func (s *Service) convertEdge(doc DocumentRef, p edgeProposal, known map[uuid.UUID]*graph.Node) (*graph.Edge, error) {
	sourceID, err := uuid.Parse(p.SourceID)
	if err != nil {
		return nil, fmt.Errorf("bad source id %q", p.SourceID)
	}
	targetID, err := uuid.Parse(p.TargetID)
	if err != nil {
		return nil, fmt.Errorf("bad target id %q", p.TargetID)
	}
	if _, ok := known[sourceID]; !ok {
		return nil, fmt.Errorf("unknown source node %s", sourceID)
	}
	if _, ok := known[targetID]; !ok {
		return nil, fmt.Errorf("unknown target node %s", targetID)
	}

	docID := doc.ID
	spec := graph.EdgeSpec{
		ProjectID:    doc.ProjectID,
		Type:         graph.EdgeType(p.Type),
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
		Strength:     p.Strength,
		Provenance:   p.Reason,
		SourceType:   graph.SourceIntegration,
		DocumentID:   &docID,
	}
	if err := graph.ValidateEdge(spec); err != nil {
		return nil, err
	}
	return store.EdgeFromSpec(spec), nil
}

// convertTension builds a tension node and its contradicts-edges. A
// proposal that does not name at least two known conflicting nodes with an
// explanation is not a genuine contradiction and is discarded.
func (s *Service) convertTension(doc DocumentRef, p tensionProposal, known map[uuid.UUID]*graph.Node) (*store.TensionCreate, error) {
	if p.Content == "" || p.Explanation == "" {
		return nil, fmt.Errorf("tension proposal missing content or explanation")
	}

	var conflicting []uuid.UUID
	for _, raw := range p.NodeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if _, ok := known[id]; ok {
			conflicting = append(conflicting, id)
		}
	}
	if len(conflicting) < 2 {
		return nil, fmt.Errorf("tension proposal names fewer than two known nodes")
	}

	severity := graph.Severity(p.Severity)
	if !graph.IsValidSeverity(severity) {
		severity = graph.SeverityMedium
	}

	docID := doc.ID
	spec := graph.NodeSpec{
		ProjectID: doc.ProjectID,
		Type:      graph.NodeTension,
		Status:    graph.StatusActive,
		Content:   p.Content,
		Properties: graph.Properties{
			Tension: &graph.TensionProperties{
				Severity:           severity,
				ConflictingNodeIDs: conflicting,
			},
		},
		SourceType: graph.SourceIntegration,
		DocumentID: &docID,
	}
	if err := graph.ValidateNode(spec); err != nil {
		return nil, err
	}

	node := store.NodeFromSpec(spec)
	node.ID = uuid.New()

	edges := make([]*graph.Edge, 0, len(conflicting))
	for _, target := range conflicting {
		edges = append(edges, &graph.Edge{
			ProjectID:    doc.ProjectID,
			Type:         graph.EdgeContradicts,
			SourceNodeID: node.ID,
			TargetNodeID: target,
			Provenance:   p.Explanation,
			SourceType:   graph.SourceIntegration,
			DocumentID:   &docID,
		})
	}

	return &store.TensionCreate{Node: node, Edges: edges}, nil
}

// createGapNodes turns coverage-gap proposals into unsubstantiated claim
// nodes. Failures here are logged and skipped; gaps are best-effort.
func (s *Service) createGapNodes(ctx context.Context, doc DocumentRef, gaps []gapProposal) graph.Patch {
	var changes graph.Patch
	docID := doc.ID

	for _, gap := range gaps {
		if gap.Content == "" {
			continue
		}

		spec := graph.NodeSpec{
			ProjectID:      doc.ProjectID,
			Type:           graph.NodeClaim,
			Status:         graph.StatusUnsubstantiated,
			Content:        gap.Content,
			SourceType:     graph.SourceIntegration,
			DocumentID:     &docID,
			SourceLocation: gap.Reason,
		}

		if s.embedder != nil {
			if emb, err := s.embedder.EmbedText(ctx, gap.Content); err == nil {
				spec.Embedding = pgvector.NewVector(emb)
			}
		}

		node, err := s.store.CreateNode(ctx, spec)
		if err != nil {
			s.logger.Warn("failed to create gap node", zap.Error(err))
			continue
		}
		changes = append(changes, graph.Change{
			Kind:     graph.ChangeCreateNode,
			NodeID:   node.ID,
			NodeType: node.Type,
			Reason:   gap.Reason,
		})
	}
	return changes
}
