package extraction

import (
	"errors"
	"testing"

	"github.com/todmy/knowledge-core/internal/graph"
)

func TestParseReply(t *testing.T) {
	raw := `{
		"claims": [
			{"content": "The outage was caused by the cache migration", "status": "unsubstantiated", "quote": "we traced it to the migration", "location": "section 2"}
		],
		"evidence": [
			{"content": "Error rates spiked at 14:02 UTC", "status": "verified", "quote": "14:02 UTC spike", "location": "appendix"}
		],
		"assumptions": [
			{"content": "Traffic patterns are stable week over week", "status": "untested"}
		],
		"summary": "Incident report attributing the outage to the cache migration."
	}`

	result, err := parseReply(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].Type != graph.NodeClaim {
		t.Errorf("entry 0: expected claim, got %s", result.Entries[0].Type)
	}
	if result.Entries[1].Status != graph.StatusVerified {
		t.Errorf("entry 1: expected verified, got %s", result.Entries[1].Status)
	}
	if result.Summary == "" {
		t.Error("expected summary to be carried through")
	}
}

func TestParseReply_RemapsInvalidStatus(t *testing.T) {
	raw := `{
		"claims": [{"content": "The rollout doubled latency", "status": "probably"}]
	}`

	result, err := parseReply(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	entry := result.Entries[0]
	if entry.Status != graph.StatusUnsubstantiated {
		t.Errorf("expected remap to default claim status, got %q", entry.Status)
	}
	if !entry.StatusRemapped {
		t.Error("expected the remap to be reported")
	}
}

func TestParseReply_DropsEmptyContent(t *testing.T) {
	raw := `{
		"claims": [
			{"content": "   ", "status": "unsubstantiated"},
			{"content": "Real claim content", "status": "unsubstantiated"}
		]
	}`

	result, err := parseReply(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Entries) != 1 {
		t.Errorf("expected empty entry to be dropped, got %d entries", len(result.Entries))
	}
}

func TestParseReply_NoEntries(t *testing.T) {
	_, err := parseReply(`{"claims": [], "summary": "nothing found"}`)
	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("expected ErrNoEntries, got %v", err)
	}
}

func TestParseReply_CodeFencedJSON(t *testing.T) {
	raw := "Here is the extraction:\n```json\n{\"claims\": [{\"content\": \"fenced claim\", \"status\": \"unsubstantiated\"}]}\n```"

	result, err := parseReply(raw)
	if err != nil {
		t.Fatalf("expected fenced JSON to parse, got %v", err)
	}
	if len(result.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(result.Entries))
	}
}

func TestParseReply_Garbage(t *testing.T) {
	if _, err := parseReply("I could not find anything of note."); err == nil {
		t.Error("expected parse error for non-JSON reply")
	}
}
