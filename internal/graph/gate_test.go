package graph

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func claimSpec() NodeSpec {
	return NodeSpec{
		ProjectID:  uuid.New(),
		Type:       NodeClaim,
		Status:     StatusUnsubstantiated,
		Content:    "The deployment freeze caused the revenue dip.",
		SourceType: SourceChat,
	}
}

func TestValidateNode(t *testing.T) {
	if err := ValidateNode(claimSpec()); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
}

func TestValidateNode_UnknownType(t *testing.T) {
	spec := claimSpec()
	spec.Type = "hypothesis"

	err := ValidateNode(spec)
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("expected ErrUnknownNodeType, got %v", err)
	}
}

func TestValidateNode_StatusMismatch(t *testing.T) {
	spec := claimSpec()
	spec.Status = StatusActive // tension status on a claim

	err := ValidateNode(spec)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestValidateNode_EmptyContent(t *testing.T) {
	spec := claimSpec()
	spec.Content = "   "

	err := ValidateNode(spec)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestValidateNode_AmbiguousSource(t *testing.T) {
	spec := claimSpec()
	docID := uuid.New()
	msgID := uuid.New()
	spec.DocumentID = &docID
	spec.MessageID = &msgID

	err := ValidateNode(spec)
	if !errors.Is(err, ErrAmbiguousSource) {
		t.Errorf("expected ErrAmbiguousSource, got %v", err)
	}
}

func TestValidateNode_ClaimWithProperties(t *testing.T) {
	spec := claimSpec()
	spec.Properties = Properties{Evidence: &EvidenceProperties{Credibility: "high"}}

	err := ValidateNode(spec)
	if !errors.Is(err, ErrPropertiesMismatch) {
		t.Errorf("expected ErrPropertiesMismatch, got %v", err)
	}
}

func TestValidateNode_TensionRequiresConflict(t *testing.T) {
	spec := claimSpec()
	spec.Type = NodeTension
	spec.Status = StatusActive
	spec.Properties = Properties{
		Tension: &TensionProperties{
			Severity:           SeverityHigh,
			ConflictingNodeIDs: []uuid.UUID{uuid.New()},
		},
	}

	err := ValidateNode(spec)
	if !errors.Is(err, ErrInvalidProperties) {
		t.Errorf("expected ErrInvalidProperties for single conflicting node, got %v", err)
	}

	spec.Properties.Tension.ConflictingNodeIDs = append(spec.Properties.Tension.ConflictingNodeIDs, uuid.New())
	if err := ValidateNode(spec); err != nil {
		t.Errorf("expected valid tension, got %v", err)
	}
}

func TestNormalizeNode_RemapsStatus(t *testing.T) {
	spec := claimSpec()
	spec.Status = "plausible"

	normalized, remapped, err := NormalizeNode(spec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !remapped {
		t.Error("expected remap to be reported")
	}
	if normalized.Status != StatusUnsubstantiated {
		t.Errorf("expected default claim status, got %q", normalized.Status)
	}
}

func TestNormalizeNode_ValidStatusUntouched(t *testing.T) {
	spec := claimSpec()
	spec.Status = StatusSupported

	normalized, remapped, err := NormalizeNode(spec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if remapped {
		t.Error("expected no remap for a valid status")
	}
	if normalized.Status != StatusSupported {
		t.Errorf("status changed unexpectedly: %q", normalized.Status)
	}
}

func TestNormalizeNode_StillRejectsEmptyContent(t *testing.T) {
	spec := claimSpec()
	spec.Status = "plausible"
	spec.Content = ""

	_, _, err := NormalizeNode(spec)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func edgeSpec() EdgeSpec {
	return EdgeSpec{
		ProjectID:    uuid.New(),
		Type:         EdgeSupports,
		SourceNodeID: uuid.New(),
		TargetNodeID: uuid.New(),
		Provenance:   "the Q3 numbers directly measure the claimed dip",
		SourceType:   SourceIntegration,
	}
}

func TestValidateEdge(t *testing.T) {
	if err := ValidateEdge(edgeSpec()); err != nil {
		t.Fatalf("expected valid edge, got %v", err)
	}
}

func TestValidateEdge_SelfEdge(t *testing.T) {
	spec := edgeSpec()
	spec.TargetNodeID = spec.SourceNodeID

	if err := ValidateEdge(spec); !errors.Is(err, ErrSelfEdge) {
		t.Errorf("expected ErrSelfEdge, got %v", err)
	}
}

func TestValidateEdge_StrengthRange(t *testing.T) {
	for _, strength := range []float64{-0.1, 1.1} {
		spec := edgeSpec()
		spec.Strength = &strength
		if err := ValidateEdge(spec); !errors.Is(err, ErrInvalidStrength) {
			t.Errorf("strength %v: expected ErrInvalidStrength, got %v", strength, err)
		}
	}

	ok := 0.75
	spec := edgeSpec()
	spec.Strength = &ok
	if err := ValidateEdge(spec); err != nil {
		t.Errorf("strength %v: expected valid, got %v", ok, err)
	}
}

func TestValidateEdge_GenericProvenance(t *testing.T) {
	cases := []string{"", "related", "similar", "same topic", "Both discuss"}
	for _, provenance := range cases {
		spec := edgeSpec()
		spec.Provenance = provenance
		if err := ValidateEdge(spec); !errors.Is(err, ErrGenericProvenance) {
			t.Errorf("provenance %q: expected ErrGenericProvenance, got %v", provenance, err)
		}
	}
}

func TestValidateEdge_UnknownType(t *testing.T) {
	spec := edgeSpec()
	spec.Type = "refines"

	if err := ValidateEdge(spec); !errors.Is(err, ErrUnknownEdgeType) {
		t.Errorf("expected ErrUnknownEdgeType, got %v", err)
	}
}
