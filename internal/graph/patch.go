package graph

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ChangeKind identifies the kind of one change record in a delta patch.
type ChangeKind string

const (
	ChangeCreateNode    ChangeKind = "create_node"
	ChangeCreateEdge    ChangeKind = "create_edge"
	ChangeUpdateNode    ChangeKind = "update_node"
	ChangeCreateTension ChangeKind = "create_tension"
	ChangeDeleteNode    ChangeKind = "delete_node"
)

// Change is one typed entry in a delta patch.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	NodeID   uuid.UUID  `json:"node_id,omitempty"`
	EdgeID   uuid.UUID  `json:"edge_id,omitempty"`
	NodeType NodeType   `json:"node_type,omitempty"`
	EdgeType EdgeType   `json:"edge_type,omitempty"`

	// For update_node: the audited status transition.
	OldStatus NodeStatus `json:"old_status,omitempty"`
	NewStatus NodeStatus `json:"new_status,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Patch is the ordered list of changes one mutation batch performed.
type Patch []Change

// Value implements driver.Valuer for storing a patch in a jsonb column.
func (p Patch) Value() (driver.Value, error) {
	if len(p) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Patch) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Patch", src)
	}

	return json.Unmarshal(data, p)
}

// Impact aggregates what a patch did to the graph.
type Impact struct {
	NodesCreated          int `json:"nodes_created"`
	NodesUpdated          int `json:"nodes_updated"`
	NodesRemoved          int `json:"nodes_removed"`
	EdgesCreated          int `json:"edges_created"`
	TensionsSurfaced      int `json:"tensions_surfaced"`
	AssumptionsChallenged int `json:"assumptions_challenged"`
}

// ComputeImpact derives impact counters from a patch. A create_tension entry
// counts both as a created node and a surfaced tension. An update_node entry
// moving an assumption to challenged counts as a challenged assumption.
func ComputeImpact(p Patch) Impact {
	var impact Impact
	for _, c := range p {
		switch c.Kind {
		case ChangeCreateNode:
			impact.NodesCreated++
		case ChangeCreateTension:
			impact.NodesCreated++
			impact.TensionsSurfaced++
		case ChangeCreateEdge:
			impact.EdgesCreated++
		case ChangeUpdateNode:
			impact.NodesUpdated++
			if c.NodeType == NodeAssumption && c.NewStatus == StatusChallenged {
				impact.AssumptionsChallenged++
			}
		case ChangeDeleteNode:
			impact.NodesRemoved++
		}
	}
	return impact
}
