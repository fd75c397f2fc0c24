package graph

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Node is a unit of knowledge owned by a project. CaseID is reserved for
// case-level scoping and carries no behavior yet.
type Node struct {
	ID         uuid.UUID
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
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Edge is a directed, typed relationship between two nodes. Edges are
// immutable once created; they are removed only when an endpoint node is
// deleted.
type Edge struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Type         EdgeType
	SourceNodeID uuid.UUID
	TargetNodeID uuid.UUID
	Strength     *float64
	Provenance   string

	SourceType SourceType
	DocumentID *uuid.UUID
	MessageID  *uuid.UUID
	CreatedAt  time.Time
}

// Delta is an append-only audit record of one mutation batch: a pipeline
// run or a single chat edit.
type Delta struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Trigger    Trigger
	DocumentID *uuid.UUID
	MessageID  *uuid.UUID
	Patch      Patch
	Narrative  string
	Impact     Impact
	CreatedAt  time.Time
}
