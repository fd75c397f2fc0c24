package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
	"github.com/todmy/knowledge-core/internal/store"
)

// NodeRequest is the mutation-API payload for creating a node. The same
// validation gate the pipeline uses applies, on its rejection path: an
// invalid spec is an error here, never a remap.
type NodeRequest struct {
	Type           string               `json:"type"`
	Status         string               `json:"status"`
	Content        string               `json:"content"`
	Properties     *NodePropertiesInput `json:"properties"`
	MessageID      string               `json:"message_id"`
	SourceQuote    string               `json:"source_quote"`
	SourceLocation string               `json:"source_location"`
	Embedding      []float32            `json:"embedding"`
}

// NodePropertiesInput mirrors models.NodeProperties on the input side.
type NodePropertiesInput struct {
	Credibility        string   `json:"credibility"`
	LoadBearing        *bool    `json:"load_bearing"`
	Severity           string   `json:"severity"`
	ConflictingNodeIDs []string `json:"conflicting_node_ids"`
}

// EdgeRequest is the mutation-API payload for creating an edge.
type EdgeRequest struct {
	Type         string   `json:"type"`
	SourceNodeID string   `json:"source_node_id"`
	TargetNodeID string   `json:"target_node_id"`
	Strength     *float64 `json:"strength"`
	Provenance   string   `json:"provenance"`
	MessageID    string   `json:"message_id"`
}

// StatusRequest is the payload for a node status transition.
type StatusRequest struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	MessageID string `json:"message_id"`
}

// handleCreateNode creates a node through the validation gate and records
// a chat_edit delta.
func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	var req NodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messageID, ok := parseOptionalUUID(w, req.MessageID, "message_id")
	if !ok {
		return
	}

	spec := graph.NodeSpec{
		ProjectID:      project.ID,
		Type:           graph.NodeType(req.Type),
		Status:         graph.NodeStatus(req.Status),
		Content:        req.Content,
		SourceType:     graph.SourceChat,
		MessageID:      messageID,
		SourceQuote:    req.SourceQuote,
		SourceLocation: req.SourceLocation,
	}
	if spec.Status == "" {
		spec.Status = graph.DefaultStatus(spec.Type)
	}
	if len(req.Embedding) > 0 {
		spec.Embedding = pgvector.NewVector(req.Embedding)
	}
	if props, ok := convertPropertiesInput(w, spec.Type, req.Properties); ok {
		spec.Properties = props
	} else {
		return
	}

	unlock := s.graph.LockProject(project.ID)
	defer unlock()

	node, err := s.graph.CreateNode(r.Context(), spec)
	if err != nil {
		s.respondMutationError(w, err)
		return
	}

	patch := graph.Patch{{
		Kind:     graph.ChangeCreateNode,
		NodeID:   node.ID,
		NodeType: node.Type,
	}}
	s.recordEdit(r, project.ID, messageID, patch, "")

	respondJSON(w, http.StatusCreated, toModelNode(node))
}

// handleUpdateNodeStatus transitions a node's status and records the
// audited old/new pair in a chat_edit delta.
func (s *Server) handleUpdateNodeStatus(w http.ResponseWriter, r *http.Request) {
	project, node, ok := s.requireNode(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messageID, ok := parseOptionalUUID(w, req.MessageID, "message_id")
	if !ok {
		return
	}

	unlock := s.graph.LockProject(project.ID)
	defer unlock()

	updated, oldStatus, err := s.graph.UpdateNodeStatus(r.Context(), node.ID, graph.NodeStatus(req.Status))
	if err != nil {
		s.respondMutationError(w, err)
		return
	}

	patch := graph.Patch{{
		Kind:      graph.ChangeUpdateNode,
		NodeID:    updated.ID,
		NodeType:  updated.Type,
		OldStatus: oldStatus,
		NewStatus: updated.Status,
		Reason:    req.Reason,
	}}
	s.recordEdit(r, project.ID, messageID, patch, "")

	respondJSON(w, http.StatusOK, toModelNode(updated))
}

// ContentRequest is the payload for rewriting a node's content.
type ContentRequest struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Reason    string    `json:"reason"`
	MessageID string    `json:"message_id"`
}

// handleUpdateNodeContent rewrites a node's content (and embedding, when the
// caller recomputed one) and records the edit in a chat_edit delta.
func (s *Server) handleUpdateNodeContent(w http.ResponseWriter, r *http.Request) {
	project, node, ok := s.requireNode(w, r)
	if !ok {
		return
	}

	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messageID, ok := parseOptionalUUID(w, req.MessageID, "message_id")
	if !ok {
		return
	}

	var embedding pgvector.Vector
	if len(req.Embedding) > 0 {
		embedding = pgvector.NewVector(req.Embedding)
	}

	unlock := s.graph.LockProject(project.ID)
	defer unlock()

	updated, err := s.graph.UpdateNodeContent(r.Context(), node.ID, req.Content, embedding)
	if err != nil {
		s.respondMutationError(w, err)
		return
	}

	patch := graph.Patch{{
		Kind:     graph.ChangeUpdateNode,
		NodeID:   updated.ID,
		NodeType: updated.Type,
		Reason:   req.Reason,
	}}
	s.recordEdit(r, project.ID, messageID, patch, "")

	respondJSON(w, http.StatusOK, toModelNode(updated))
}

// handleDeleteNode removes a node, cascading its incident edges, and
// records the removal in a chat_edit delta.
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	project, node, ok := s.requireNode(w, r)
	if !ok {
		return
	}

	unlock := s.graph.LockProject(project.ID)
	defer unlock()

	edgesRemoved, err := s.graph.DeleteNode(r.Context(), node.ID)
	if err != nil {
		s.respondMutationError(w, err)
		return
	}

	patch := graph.Patch{{
		Kind:     graph.ChangeDeleteNode,
		NodeID:   node.ID,
		NodeType: node.Type,
	}}
	s.recordEdit(r, project.ID, nil, patch, "")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "deleted",
		"edges_removed": edgesRemoved,
	})
}

// handleCreateEdge creates an edge between existing nodes and records a
// chat_edit delta. A duplicate (source, target, type) triple is rejected.
func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	var req EdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sourceID, err := uuid.Parse(req.SourceNodeID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid source_node_id")
		return
	}
	targetID, err := uuid.Parse(req.TargetNodeID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid target_node_id")
		return
	}
	messageID, ok := parseOptionalUUID(w, req.MessageID, "message_id")
	if !ok {
		return
	}

	spec := graph.EdgeSpec{
		ProjectID:    project.ID,
		Type:         graph.EdgeType(req.Type),
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
		Strength:     req.Strength,
		Provenance:   req.Provenance,
		SourceType:   graph.SourceChat,
		MessageID:    messageID,
	}

	unlock := s.graph.LockProject(project.ID)
	defer unlock()

	edge, err := s.graph.CreateEdge(r.Context(), spec)
	if err != nil {
		s.respondMutationError(w, err)
		return
	}

	patch := graph.Patch{{
		Kind:     graph.ChangeCreateEdge,
		EdgeID:   edge.ID,
		EdgeType: edge.Type,
	}}
	s.recordEdit(r, project.ID, messageID, patch, "")

	respondJSON(w, http.StatusCreated, toModelEdge(edge))
}

// recordEdit writes the chat_edit delta for one mutation-API call. A failed
// audit write is logged, not surfaced: the mutation already happened. The
// same goes for a client that disconnects mid-request, so the write runs
// detached from the request's cancellation.
func (s *Server) recordEdit(r *http.Request, projectID uuid.UUID, messageID *uuid.UUID, patch graph.Patch, narrative string) {
	ctx := context.WithoutCancel(r.Context())
	if _, err := s.recorder.Record(ctx, projectID, graph.TriggerChatEdit, nil, messageID, patch, narrative); err != nil {
		s.logger.Error("record edit delta", errField(err))
	}
}

// requireNode loads the nodeID route parameter and checks it belongs to
// the ownership-checked project in the route.
func (s *Server) requireNode(w http.ResponseWriter, r *http.Request) (*storage.Project, *graph.Node, bool) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return nil, nil, false
	}

	nid, err := uuid.Parse(chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid node id")
		return nil, nil, false
	}

	node, err := s.nodes.GetByID(r.Context(), nid)
	if err != nil {
		s.logger.Error("fetch node", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch node")
		return nil, nil, false
	}
	if node == nil || node.ProjectID != project.ID {
		respondError(w, http.StatusNotFound, "node not found")
		return nil, nil, false
	}

	return project, node, true
}

func convertPropertiesInput(w http.ResponseWriter, t graph.NodeType, in *NodePropertiesInput) (graph.Properties, bool) {
	var props graph.Properties
	if in == nil {
		return props, true
	}

	switch t {
	case graph.NodeEvidence:
		if in.Credibility != "" {
			props.Evidence = &graph.EvidenceProperties{Credibility: in.Credibility}
		}
	case graph.NodeAssumption:
		if in.LoadBearing != nil {
			props.Assumption = &graph.AssumptionProperties{LoadBearing: *in.LoadBearing}
		}
	case graph.NodeTension:
		ids := make([]uuid.UUID, 0, len(in.ConflictingNodeIDs))
		for _, raw := range in.ConflictingNodeIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid conflicting node id")
				return props, false
			}
			ids = append(ids, id)
		}
		props.Tension = &graph.TensionProperties{
			Severity:           graph.Severity(in.Severity),
			ConflictingNodeIDs: ids,
		}
	}

	return props, true
}

func parseOptionalUUID(w http.ResponseWriter, raw, name string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return nil, false
	}
	return &id, true
}

// respondMutationError maps a mutation failure to a synchronous rejection
// with a reason. Invalid edits are never retried by the server.
func (s *Server) respondMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNodeNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrForeignNode):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrDuplicateEdge):
		respondError(w, http.StatusConflict, "an edge with this source, target, and type already exists")
	case isGateError(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("mutation failed", errField(err))
		respondError(w, http.StatusInternalServerError, "mutation failed")
	}
}

func isGateError(err error) bool {
	for _, gateErr := range []error{
		graph.ErrUnknownNodeType,
		graph.ErrUnknownEdgeType,
		graph.ErrInvalidStatus,
		graph.ErrEmptyContent,
		graph.ErrAmbiguousSource,
		graph.ErrSelfEdge,
		graph.ErrInvalidStrength,
		graph.ErrGenericProvenance,
		graph.ErrPropertiesMismatch,
		graph.ErrInvalidProperties,
		store.ErrStatusRejected,
	} {
		if errors.Is(err, gateErr) {
			return true
		}
	}
	return false
}
