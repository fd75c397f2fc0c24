package models

import (
	"time"
)

// User represents a registered user
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Project represents a knowledge graph project
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document represents an ingested document and its pipeline state
type Document struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Title              string     `json:"title"`
	Status             string     `json:"status"`
	FailedPhase        string     `json:"failed_phase,omitempty"`
	ErrorMessage       string     `json:"error,omitempty"`
	PartialNodeCount   int        `json:"partial_node_count,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`
	ExtractedNodeCount int        `json:"extracted_node_count"`
	Summary            string     `json:"summary,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NodeProperties is the flattened wire shape of type-specific node
// properties. Which fields are meaningful depends on the node type.
type NodeProperties struct {
	Credibility        string   `json:"credibility,omitempty"`
	LoadBearing        *bool    `json:"load_bearing,omitempty"`
	Severity           string   `json:"severity,omitempty"`
	ConflictingNodeIDs []string `json:"conflicting_node_ids,omitempty"`
}

// Node represents a knowledge unit in API responses
type Node struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	CaseID         string          `json:"case_id,omitempty"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Content        string          `json:"content"`
	Properties     *NodeProperties `json:"properties,omitempty"`
	SourceType     string          `json:"source_type"`
	DocumentID     string          `json:"document_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ChunkIDs       []string        `json:"chunk_ids,omitempty"`
	SourceQuote    string          `json:"source_quote,omitempty"`
	SourceLocation string          `json:"source_location,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Edge represents a typed relationship in API responses
type Edge struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Type         string    `json:"type"`
	SourceNodeID string    `json:"source_node_id"`
	TargetNodeID string    `json:"target_node_id"`
	Strength     *float64  `json:"strength,omitempty"`
	Provenance   string    `json:"provenance"`
	SourceType   string    `json:"source_type"`
	DocumentID   string    `json:"document_id,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Change is one entry of a delta patch
type Change struct {
	Kind      string `json:"kind"`
	NodeID    string `json:"node_id,omitempty"`
	EdgeID    string `json:"edge_id,omitempty"`
	NodeType  string `json:"node_type,omitempty"`
	EdgeType  string `json:"edge_type,omitempty"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Impact holds the aggregate counters of a delta
type Impact struct {
	NodesCreated          int `json:"nodes_created"`
	NodesUpdated          int `json:"nodes_updated"`
	NodesRemoved          int `json:"nodes_removed"`
	EdgesCreated          int `json:"edges_created"`
	TensionsSurfaced      int `json:"tensions_surfaced"`
	AssumptionsChallenged int `json:"assumptions_challenged"`
}

// Delta represents one audit record of a mutation batch
type Delta struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Trigger    string    `json:"trigger"`
	DocumentID string    `json:"document_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Patch      []Change  `json:"patch"`
	Narrative  string    `json:"narrative"`
	Impact     Impact    `json:"impact"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthSummary is the computed state-of-the-graph snapshot. It is derived
// from nodes and edges on every request, never stored.
type HealthSummary struct {
	TotalNodes            int            `json:"total_nodes"`
	NodesByType           map[string]int `json:"nodes_by_type"`
	TotalEdges            int            `json:"total_edges"`
	EdgesByType           map[string]int `json:"edges_by_type"`
	ActiveTensions        int            `json:"active_tensions"`
	UntestedAssumptions   int            `json:"untested_assumptions"`
	UnsubstantiatedClaims int            `json:"unsubstantiated_claims"`
}

// Orientation is the derived agreements/contradictions/assumptions/gaps
// projection of a project graph.
type Orientation struct {
	Agreements        []Agreement        `json:"agreements"`
	Contradictions    []Contradiction    `json:"contradictions"`
	HiddenAssumptions []HiddenAssumption `json:"hidden_assumptions"`
	Gaps              []Gap              `json:"gaps"`
}

// Agreement is a supports relationship with both endpoint contents inlined
type Agreement struct {
	EdgeID        string   `json:"edge_id"`
	SourceNodeID  string   `json:"source_node_id"`
	TargetNodeID  string   `json:"target_node_id"`
	SourceContent string   `json:"source_content"`
	TargetContent string   `json:"target_content"`
	Strength      *float64 `json:"strength,omitempty"`
}

// Contradiction is an active tension and the nodes it holds in conflict
type Contradiction struct {
	TensionID          string   `json:"tension_id"`
	Content            string   `json:"content"`
	Severity           string   `json:"severity"`
	Status             string   `json:"status"`
	ConflictingNodeIDs []string `json:"conflicting_node_ids"`
}

// HiddenAssumption is an assumption that has not been confirmed
type HiddenAssumption struct {
	NodeID      string `json:"node_id"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	LoadBearing bool   `json:"load_bearing"`
}

// Gap is an unsubstantiated claim with no support or opposition yet
type Gap struct {
	NodeID  string `json:"node_id"`
	Content string `json:"content"`
	Reason  string `json:"reason,omitempty"`
}
