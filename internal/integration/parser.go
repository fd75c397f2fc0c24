package integration

import (
	"encoding/json"
	"fmt"

	"github.com/todmy/knowledge-core/internal/llm"
)

// proposals is the raw JSON shape of one integration reply. Everything in
// it is a proposal: the service validates each item before anything is
// applied to the graph.
type proposals struct {
	Edges         []edgeProposal    `json:"edges"`
	Tensions      []tensionProposal `json:"tensions"`
	StatusUpdates []statusProposal  `json:"status_updates"`
	Gaps          []gapProposal     `json:"gaps"`
	Narrative     string            `json:"narrative"`
}

type edgeProposal struct {
	Type     string   `json:"type"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Strength *float64 `json:"strength"`
	Reason   string   `json:"reason"`
}

type tensionProposal struct {
	Content     string   `json:"content"`
	Severity    string   `json:"severity"`
	NodeIDs     []string `json:"node_ids"`
	Explanation string   `json:"explanation"`
}

type statusProposal struct {
	NodeID    string `json:"node_id"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason"`
}

type gapProposal struct {
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

func parseProposals(raw string) (*proposals, error) {
	var p proposals
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("parse integration reply: %w", err)
	}
	return &p, nil
}
