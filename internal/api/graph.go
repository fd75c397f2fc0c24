package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/pkg/models"
)

// handleGetGraph returns a project's node and edge set. The type and status
// query parameters narrow the node set; edges are then restricted to the
// surviving endpoints.
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	typeFilter := r.URL.Query().Get("type")
	if typeFilter != "" && !graph.IsValidType(graph.NodeType(typeFilter)) {
		respondError(w, http.StatusBadRequest, "unknown node type")
		return
	}
	statusFilter := r.URL.Query().Get("status")

	nodes, edges, ok := s.loadGraph(w, r, project.ID)
	if !ok {
		return
	}

	if typeFilter != "" || statusFilter != "" {
		nodes, edges = filterGraph(nodes, edges, graph.NodeType(typeFilter), graph.NodeStatus(statusFilter))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": toModelNodes(nodes),
		"edges": toModelEdges(edges),
	})
}

func filterGraph(nodes []*graph.Node, edges []*graph.Edge, t graph.NodeType, status graph.NodeStatus) ([]*graph.Node, []*graph.Edge) {
	kept := make(map[uuid.UUID]bool)
	var outNodes []*graph.Node
	for _, n := range nodes {
		if t != "" && n.Type != t {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		kept[n.ID] = true
		outNodes = append(outNodes, n)
	}

	var outEdges []*graph.Edge
	for _, e := range edges {
		if kept[e.SourceNodeID] && kept[e.TargetNodeID] {
			outEdges = append(outEdges, e)
		}
	}
	return outNodes, outEdges
}

// handleGetGraphHealth returns the computed health summary. Nothing here is
// stored; it is derived from the graph on every request.
func (s *Server) handleGetGraphHealth(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	nodes, edges, ok := s.loadGraph(w, r, project.ID)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, computeHealth(nodes, edges))
}

// handleGetOrientation returns the derived agreements, contradictions,
// hidden assumptions, and gaps projection.
func (s *Server) handleGetOrientation(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	nodes, edges, ok := s.loadGraph(w, r, project.ID)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, computeOrientation(nodes, edges))
}

func (s *Server) loadGraph(w http.ResponseWriter, r *http.Request, projectID uuid.UUID) ([]*graph.Node, []*graph.Edge, bool) {
	nodes, err := s.nodes.GetByProjectID(r.Context(), projectID, nil)
	if err != nil {
		s.logger.Error("load nodes", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to load graph")
		return nil, nil, false
	}

	edges, err := s.edges.GetByProjectID(r.Context(), projectID)
	if err != nil {
		s.logger.Error("load edges", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to load graph")
		return nil, nil, false
	}

	return nodes, edges, true
}

func computeHealth(nodes []*graph.Node, edges []*graph.Edge) models.HealthSummary {
	health := models.HealthSummary{
		TotalNodes:  len(nodes),
		TotalEdges:  len(edges),
		NodesByType: make(map[string]int),
		EdgesByType: make(map[string]int),
	}

	for _, n := range nodes {
		health.NodesByType[string(n.Type)]++

		switch {
		case n.Type == graph.NodeTension && n.Status == graph.StatusActive:
			health.ActiveTensions++
		case n.Type == graph.NodeAssumption && n.Status == graph.StatusUntested:
			health.UntestedAssumptions++
		case n.Type == graph.NodeClaim && n.Status == graph.StatusUnsubstantiated:
			health.UnsubstantiatedClaims++
		}
	}

	for _, e := range edges {
		health.EdgesByType[string(e.Type)]++
	}

	return health
}

func computeOrientation(nodes []*graph.Node, edges []*graph.Edge) models.Orientation {
	byID := make(map[uuid.UUID]*graph.Node, len(nodes))
	connected := make(map[uuid.UUID]bool)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, e := range edges {
		connected[e.SourceNodeID] = true
		connected[e.TargetNodeID] = true
	}

	orientation := models.Orientation{
		Agreements:        []models.Agreement{},
		Contradictions:    []models.Contradiction{},
		HiddenAssumptions: []models.HiddenAssumption{},
		Gaps:              []models.Gap{},
	}

	for _, e := range edges {
		if e.Type != graph.EdgeSupports {
			continue
		}
		source, target := byID[e.SourceNodeID], byID[e.TargetNodeID]
		if source == nil || target == nil {
			continue
		}
		orientation.Agreements = append(orientation.Agreements, models.Agreement{
			EdgeID:        e.ID.String(),
			SourceNodeID:  e.SourceNodeID.String(),
			TargetNodeID:  e.TargetNodeID.String(),
			SourceContent: source.Content,
			TargetContent: target.Content,
			Strength:      e.Strength,
		})
	}

	for _, n := range nodes {
		switch n.Type {
		case graph.NodeTension:
			if n.Status != graph.StatusActive {
				continue
			}
			contradiction := models.Contradiction{
				TensionID: n.ID.String(),
				Content:   n.Content,
				Status:    string(n.Status),
			}
			if n.Properties.Tension != nil {
				contradiction.Severity = string(n.Properties.Tension.Severity)
				contradiction.ConflictingNodeIDs = uuidStrings(n.Properties.Tension.ConflictingNodeIDs)
			}
			orientation.Contradictions = append(orientation.Contradictions, contradiction)

		case graph.NodeAssumption:
			if n.Status == graph.StatusConfirmed {
				continue
			}
			assumption := models.HiddenAssumption{
				NodeID:  n.ID.String(),
				Content: n.Content,
				Status:  string(n.Status),
			}
			if n.Properties.Assumption != nil {
				assumption.LoadBearing = n.Properties.Assumption.LoadBearing
			}
			orientation.HiddenAssumptions = append(orientation.HiddenAssumptions, assumption)

		case graph.NodeClaim:
			// A gap is a claim nothing supports or opposes yet.
			if n.Status != graph.StatusUnsubstantiated || connected[n.ID] {
				continue
			}
			orientation.Gaps = append(orientation.Gaps, models.Gap{
				NodeID:  n.ID.String(),
				Content: n.Content,
				Reason:  n.SourceLocation,
			})
		}
	}

	return orientation
}
