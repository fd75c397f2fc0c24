// Package delta records immutable audit entries for every mutation batch.
// Recording is separate from the mutation transaction: a delta describes
// what happened, it is not part of making it happen.
package delta

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

// Recorder persists deltas.
type Recorder struct {
	deltas storage.DeltaRepository
}

// NewRecorder creates a Recorder.
func NewRecorder(deltas storage.DeltaRepository) *Recorder {
	return &Recorder{deltas: deltas}
}

// Record computes impact counters from the patch and appends a delta.
// Exactly one of documentID and messageID should be set, matching the
// trigger; both may be nil for agent-originated batches.
func (r *Recorder) Record(ctx context.Context, projectID uuid.UUID, trigger graph.Trigger, documentID, messageID *uuid.UUID, patch graph.Patch, narrative string) (*graph.Delta, error) {
	if narrative == "" {
		narrative = defaultNarrative(patch)
	}

	d := &graph.Delta{
		ProjectID:  projectID,
		Trigger:    trigger,
		DocumentID: documentID,
		MessageID:  messageID,
		Patch:      patch,
		Narrative:  narrative,
		Impact:     graph.ComputeImpact(patch),
	}

	if err := r.deltas.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("record delta: %w", err)
	}
	return d, nil
}

func defaultNarrative(patch graph.Patch) string {
	impact := graph.ComputeImpact(patch)
	return fmt.Sprintf("Added %d nodes and %d edges; surfaced %d tensions; updated %d nodes.",
		impact.NodesCreated, impact.EdgesCreated, impact.TensionsSurfaced, impact.NodesUpdated)
}
