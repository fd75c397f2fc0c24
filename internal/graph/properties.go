package graph

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPropertiesMismatch = errors.New("properties do not match node type")
	ErrInvalidProperties  = errors.New("invalid properties")
)

// EvidenceProperties holds evidence-specific metadata.
type EvidenceProperties struct {
	Credibility string `json:"credibility,omitempty"` // high, medium, low
}

// AssumptionProperties holds assumption-specific metadata.
type AssumptionProperties struct {
	LoadBearing bool `json:"load_bearing"`
}

// TensionProperties holds tension-specific metadata, including the nodes
// whose contents are in conflict.
type TensionProperties struct {
	Severity           Severity    `json:"severity"`
	ConflictingNodeIDs []uuid.UUID `json:"conflicting_node_ids"`
}

// Properties is a tagged variant keyed by node type: at most one of the
// variant pointers is set, and it must agree with the owning node's type.
// Claims carry no type-specific properties, so all pointers may be nil.
type Properties struct {
	Evidence   *EvidenceProperties   `json:"evidence,omitempty"`
	Assumption *AssumptionProperties `json:"assumption,omitempty"`
	Tension    *TensionProperties    `json:"tension,omitempty"`
}

// Validate checks that the set variant matches the node type and that the
// variant's own fields are legal.
func (p Properties) Validate(t NodeType) error {
	set := 0
	if p.Evidence != nil {
		set++
	}
	if p.Assumption != nil {
		set++
	}
	if p.Tension != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("%w: multiple variants set", ErrInvalidProperties)
	}

	switch t {
	case NodeClaim:
		if set != 0 {
			return ErrPropertiesMismatch
		}
	case NodeEvidence:
		if p.Assumption != nil || p.Tension != nil {
			return ErrPropertiesMismatch
		}
		if p.Evidence != nil {
			switch p.Evidence.Credibility {
			case "", "high", "medium", "low":
			default:
				return fmt.Errorf("%w: credibility %q", ErrInvalidProperties, p.Evidence.Credibility)
			}
		}
	case NodeAssumption:
		if p.Evidence != nil || p.Tension != nil {
			return ErrPropertiesMismatch
		}
	case NodeTension:
		if p.Evidence != nil || p.Assumption != nil {
			return ErrPropertiesMismatch
		}
		if p.Tension == nil {
			return fmt.Errorf("%w: tension node requires tension properties", ErrInvalidProperties)
		}
		if !IsValidSeverity(p.Tension.Severity) {
			return fmt.Errorf("%w: severity %q", ErrInvalidProperties, p.Tension.Severity)
		}
		if len(p.Tension.ConflictingNodeIDs) < 2 {
			return fmt.Errorf("%w: tension requires at least two conflicting nodes", ErrInvalidProperties)
		}
	default:
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidProperties, t)
	}

	return nil
}

// IsZero reports whether no variant is set.
func (p Properties) IsZero() bool {
	return p.Evidence == nil && p.Assumption == nil && p.Tension == nil
}

// Value implements driver.Valuer so Properties can be stored in a jsonb column.
func (p Properties) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for reading Properties back from jsonb.
func (p *Properties) Scan(src interface{}) error {
	if src == nil {
		*p = Properties{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Properties", src)
	}

	return json.Unmarshal(data, p)
}
