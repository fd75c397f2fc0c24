package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

var (
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrUnknownEdgeType   = errors.New("unknown edge type")
	ErrInvalidStatus     = errors.New("status not valid for node type")
	ErrEmptyContent      = errors.New("node content is required")
	ErrAmbiguousSource   = errors.New("at most one of document or message provenance may be set")
	ErrSelfEdge          = errors.New("edge endpoints must differ")
	ErrInvalidStrength   = errors.New("edge strength must be in [0,1]")
	ErrGenericProvenance = errors.New("edge provenance must state a specific reason")
)

// NodeSpec describes a node to be created.
type NodeSpec struct {
	ProjectID  uuid.UUID
	CaseID     *uuid.UUID
	Type       NodeType
	Status     NodeStatus
	Content    string
	Properties Properties

	SourceType     SourceType
	DocumentID     *uuid.UUID
	MessageID      *uuid.UUID
	ChunkIDs       []uuid.UUID
	SourceQuote    string
	SourceLocation string

	Embedding pgvector.Vector
}

// EdgeSpec describes an edge to be created.
type EdgeSpec struct {
	ProjectID    uuid.UUID
	Type         EdgeType
	SourceNodeID uuid.UUID
	TargetNodeID uuid.UUID
	Strength     *float64
	Provenance   string

	SourceType SourceType
	DocumentID *uuid.UUID
	MessageID  *uuid.UUID
}

// Provenance strings that name no substantive relationship. Same-topic
// co-occurrence is not a reason for an edge.
var genericProvenance = []string{
	"related",
	"relevant",
	"similar",
	"same topic",
	"both discuss",
	"both mention",
}

const minProvenanceLength = 12

// ValidateNode is the rejection path of the validation gate, used for
// externally supplied edits. It never mutates the spec: an invalid
// type/status combination is an error, not a remap.
func ValidateNode(spec NodeSpec) error {
	if !IsValidType(spec.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, spec.Type)
	}
	if !IsValidStatus(spec.Type, spec.Status) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidStatus, spec.Status, spec.Type)
	}
	if strings.TrimSpace(spec.Content) == "" {
		return ErrEmptyContent
	}
	if spec.DocumentID != nil && spec.MessageID != nil {
		return ErrAmbiguousSource
	}
	if err := spec.Properties.Validate(spec.Type); err != nil {
		return err
	}
	return nil
}

// NormalizeNode is the remapping path of the validation gate, used for
// pipeline-originated nodes that must not be silently dropped. An invalid
// or missing status is replaced by the type's default. The returned bool
// reports whether a remap happened. A spec that is invalid beyond its
// status still fails.
func NormalizeNode(spec NodeSpec) (NodeSpec, bool, error) {
	remapped := false
	if !IsValidStatus(spec.Type, spec.Status) {
		spec.Status = DefaultStatus(spec.Type)
		remapped = true
	}
	if err := ValidateNode(spec); err != nil {
		return spec, remapped, err
	}
	return spec, remapped, nil
}

// ValidateEdge checks the shape of an edge spec. Endpoint existence and
// project membership are checked by the store, which can see the database.
func ValidateEdge(spec EdgeSpec) error {
	if !IsValidEdgeType(spec.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownEdgeType, spec.Type)
	}
	if spec.SourceNodeID == spec.TargetNodeID {
		return ErrSelfEdge
	}
	if spec.Strength != nil && (*spec.Strength < 0 || *spec.Strength > 1) {
		return ErrInvalidStrength
	}
	if err := validateProvenance(spec.Provenance); err != nil {
		return err
	}
	return nil
}

func validateProvenance(provenance string) error {
	trimmed := strings.TrimSpace(strings.ToLower(provenance))
	if len(trimmed) < minProvenanceLength {
		return ErrGenericProvenance
	}
	for _, generic := range genericProvenance {
		if trimmed == generic {
			return ErrGenericProvenance
		}
	}
	return nil
}
