package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/llm"
)

// ErrNoEntries is returned when the model reply parses but contains no
// usable knowledge units.
var ErrNoEntries = errors.New("extraction produced no entries")

// Entry is one extracted knowledge unit before it becomes a node.
type Entry struct {
	Type     graph.NodeType
	Content  string
	Status   graph.NodeStatus
	Quote    string
	Location string
	Reason   string

	// StatusRemapped is set when the gate replaced an invalid proposed
	// status with the type's default.
	StatusRemapped bool
}

// Result is the parsed output of one extraction call.
type Result struct {
	Entries []Entry
	Summary string
}

type replyEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status"`
	Quote    string `json:"quote"`
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

type reply struct {
	Claims      []replyEntry `json:"claims"`
	Evidence    []replyEntry `json:"evidence"`
	Assumptions []replyEntry `json:"assumptions"`
	Summary     string       `json:"summary"`
}

// parseReply turns the model's JSON into entries. Entries with empty content
// are dropped; an invalid status is remapped to the type's default rather
// than dropping the entry, since extraction must not silently lose content.
func parseReply(raw string) (*Result, error) {
	var r reply
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &r); err != nil {
		return nil, fmt.Errorf("parse extraction reply: %w", err)
	}

	result := &Result{Summary: strings.TrimSpace(r.Summary)}
	result.Entries = append(result.Entries, convertEntries(r.Claims, graph.NodeClaim)...)
	result.Entries = append(result.Entries, convertEntries(r.Evidence, graph.NodeEvidence)...)
	result.Entries = append(result.Entries, convertEntries(r.Assumptions, graph.NodeAssumption)...)

	if len(result.Entries) == 0 {
		return nil, ErrNoEntries
	}
	return result, nil
}

func convertEntries(raw []replyEntry, nodeType graph.NodeType) []Entry {
	var entries []Entry
	for _, e := range raw {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}

		status := graph.NodeStatus(e.Status)
		remapped := false
		if !graph.IsValidStatus(nodeType, status) {
			status = graph.DefaultStatus(nodeType)
			remapped = true
		}

		entries = append(entries, Entry{
			Type:           nodeType,
			Content:        content,
			Status:         status,
			Quote:          strings.TrimSpace(e.Quote),
			Location:       strings.TrimSpace(e.Location),
			Reason:         strings.TrimSpace(e.Reason),
			StatusRemapped: remapped,
		})
	}
	return entries
}
