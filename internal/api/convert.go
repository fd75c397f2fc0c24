package api

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
	"github.com/todmy/knowledge-core/pkg/models"
)

func errField(err error) zap.Field {
	return zap.Error(err)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func toModelProject(p *storage.Project) models.Project {
	return models.Project{
		ID:        p.ID.String(),
		UserID:    p.UserID.String(),
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toModelDocument(d *storage.Document) models.Document {
	return models.Document{
		ID:                 d.ID.String(),
		ProjectID:          d.ProjectID.String(),
		Title:              d.Title,
		Status:             string(d.Status),
		FailedPhase:        string(d.FailedPhase),
		ErrorMessage:       d.ErrorMessage,
		PartialNodeCount:   d.PartialNodeCount,
		FailedAt:           d.FailedAt,
		ExtractedNodeCount: d.ExtractedNodeCount,
		Summary:            d.Summary,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func toModelProperties(p graph.Properties) *models.NodeProperties {
	if p.IsZero() {
		return nil
	}

	out := &models.NodeProperties{}
	switch {
	case p.Evidence != nil:
		out.Credibility = p.Evidence.Credibility
	case p.Assumption != nil:
		loadBearing := p.Assumption.LoadBearing
		out.LoadBearing = &loadBearing
	case p.Tension != nil:
		out.Severity = string(p.Tension.Severity)
		out.ConflictingNodeIDs = uuidStrings(p.Tension.ConflictingNodeIDs)
	}
	return out
}

func toModelNode(n *graph.Node) models.Node {
	return models.Node{
		ID:             n.ID.String(),
		ProjectID:      n.ProjectID.String(),
		CaseID:         uuidString(n.CaseID),
		Type:           string(n.Type),
		Status:         string(n.Status),
		Content:        n.Content,
		Properties:     toModelProperties(n.Properties),
		SourceType:     string(n.SourceType),
		DocumentID:     uuidString(n.DocumentID),
		MessageID:      uuidString(n.MessageID),
		ChunkIDs:       uuidStrings(n.ChunkIDs),
		SourceQuote:    n.SourceQuote,
		SourceLocation: n.SourceLocation,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func toModelNodes(nodes []*graph.Node) []models.Node {
	out := make([]models.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toModelNode(n))
	}
	return out
}

func toModelEdge(e *graph.Edge) models.Edge {
	return models.Edge{
		ID:           e.ID.String(),
		ProjectID:    e.ProjectID.String(),
		Type:         string(e.Type),
		SourceNodeID: e.SourceNodeID.String(),
		TargetNodeID: e.TargetNodeID.String(),
		Strength:     e.Strength,
		Provenance:   e.Provenance,
		SourceType:   string(e.SourceType),
		DocumentID:   uuidString(e.DocumentID),
		MessageID:    uuidString(e.MessageID),
		CreatedAt:    e.CreatedAt,
	}
}

func toModelEdges(edges []*graph.Edge) []models.Edge {
	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, toModelEdge(e))
	}
	return out
}

func toModelChange(c graph.Change) models.Change {
	out := models.Change{
		Kind:      string(c.Kind),
		NodeType:  string(c.NodeType),
		EdgeType:  string(c.EdgeType),
		OldStatus: string(c.OldStatus),
		NewStatus: string(c.NewStatus),
		Reason:    c.Reason,
	}
	if c.NodeID != uuid.Nil {
		out.NodeID = c.NodeID.String()
	}
	if c.EdgeID != uuid.Nil {
		out.EdgeID = c.EdgeID.String()
	}
	return out
}

func toModelDelta(d *graph.Delta) models.Delta {
	patch := make([]models.Change, 0, len(d.Patch))
	for _, c := range d.Patch {
		patch = append(patch, toModelChange(c))
	}

	return models.Delta{
		ID:         d.ID.String(),
		ProjectID:  d.ProjectID.String(),
		Trigger:    string(d.Trigger),
		DocumentID: uuidString(d.DocumentID),
		MessageID:  uuidString(d.MessageID),
		Patch:      patch,
		Narrative:  d.Narrative,
		Impact: models.Impact{
			NodesCreated:          d.Impact.NodesCreated,
			NodesUpdated:          d.Impact.NodesUpdated,
			NodesRemoved:          d.Impact.NodesRemoved,
			EdgesCreated:          d.Impact.EdgesCreated,
			TensionsSurfaced:      d.Impact.TensionsSurfaced,
			AssumptionsChallenged: d.Impact.AssumptionsChallenged,
		},
		CreatedAt: d.CreatedAt,
	}
}
