package graph

// NodeType classifies a unit of knowledge in the graph.
type NodeType string

const (
	NodeClaim      NodeType = "claim"
	NodeEvidence   NodeType = "evidence"
	NodeAssumption NodeType = "assumption"
	NodeTension    NodeType = "tension"
)

// NodeStatus is the lifecycle status of a node. The set of legal statuses
// depends on the node type; see ValidStatuses.
type NodeStatus string

const (
	// Claim statuses
	StatusUnsubstantiated NodeStatus = "unsubstantiated"
	StatusSupported       NodeStatus = "supported"
	StatusDisputed        NodeStatus = "disputed"
	StatusRefuted         NodeStatus = "refuted"

	// Evidence statuses
	StatusUnverified NodeStatus = "unverified"
	StatusVerified   NodeStatus = "verified"

	// Assumption statuses
	StatusUntested   NodeStatus = "untested"
	StatusConfirmed  NodeStatus = "confirmed"
	StatusChallenged NodeStatus = "challenged"

	// Tension statuses
	StatusActive    NodeStatus = "active"
	StatusResolved  NodeStatus = "resolved"
	StatusDismissed NodeStatus = "dismissed"
)

// EdgeType classifies a directed relationship between two nodes.
type EdgeType string

const (
	EdgeSupports    EdgeType = "supports"
	EdgeContradicts EdgeType = "contradicts"
	EdgeDependsOn   EdgeType = "depends_on"
)

// SourceType records where a node or edge came from.
type SourceType string

const (
	SourceDocumentExtraction SourceType = "document_extraction"
	SourceChat               SourceType = "chat"
	SourceAgent              SourceType = "agent"
	SourceUserEdit           SourceType = "user_edit"
	SourceIntegration        SourceType = "integration"
)

// Trigger identifies what kind of event produced a delta.
type Trigger string

const (
	TriggerDocumentUpload Trigger = "document_upload"
	TriggerChatEdit       Trigger = "chat_edit"
	TriggerAgentAnalysis  Trigger = "agent_analysis"
	TriggerUserEdit       Trigger = "user_edit"
)

// Severity grades how serious a tension is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var validStatuses = map[NodeType][]NodeStatus{
	NodeClaim:      {StatusUnsubstantiated, StatusSupported, StatusDisputed, StatusRefuted},
	NodeEvidence:   {StatusUnverified, StatusVerified, StatusDisputed},
	NodeAssumption: {StatusUntested, StatusConfirmed, StatusChallenged, StatusRefuted},
	NodeTension:    {StatusActive, StatusResolved, StatusDismissed},
}

var defaultStatus = map[NodeType]NodeStatus{
	NodeClaim:      StatusUnsubstantiated,
	NodeEvidence:   StatusUnverified,
	NodeAssumption: StatusUntested,
	NodeTension:    StatusActive,
}

// ValidStatuses returns the legal statuses for a node type.
func ValidStatuses(t NodeType) []NodeStatus {
	return validStatuses[t]
}

// IsValidType reports whether t is a known node type.
func IsValidType(t NodeType) bool {
	_, ok := validStatuses[t]
	return ok
}

// IsValidStatus reports whether s is legal for nodes of type t.
func IsValidStatus(t NodeType, s NodeStatus) bool {
	for _, valid := range validStatuses[t] {
		if s == valid {
			return true
		}
	}
	return false
}

// DefaultStatus returns the status a node of type t starts with when no
// valid status was supplied.
func DefaultStatus(t NodeType) NodeStatus {
	return defaultStatus[t]
}

// IsValidEdgeType reports whether t is a known edge type.
func IsValidEdgeType(t EdgeType) bool {
	switch t {
	case EdgeSupports, EdgeContradicts, EdgeDependsOn:
		return true
	}
	return false
}

// IsValidSeverity reports whether s is a known severity grade.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}
