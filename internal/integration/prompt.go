package integration

import (
	"fmt"
	"strings"

	"github.com/todmy/knowledge-core/internal/assembler"
	"github.com/todmy/knowledge-core/internal/graph"
)

func buildPrompt(title string, newNodes []*graph.Node, assembled *assembler.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are reconciling newly extracted knowledge against a project's existing knowledge graph.

New nodes were just extracted from the document %q:

`, title)
	writeNodes(&b, newNodes)

	fmt.Fprintf(&b, "\nExisting graph (%d of %d total nodes shown; reason only about what is shown):\n\n",
		len(assembled.Nodes), assembled.TotalNodeCount)
	writeNodes(&b, assembled.Nodes)

	if len(assembled.Edges) > 0 {
		b.WriteString("\nExisting edges:\n")
		for _, edge := range assembled.Edges {
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", edge.SourceNodeID, edge.Type, edge.TargetNodeID)
		}
	}

	b.WriteString(`
Propose, conservatively:

1. "edges": relationships between a new node and an existing node (or between
   two new nodes). Types: supports, contradicts, depends_on. Create an edge
   ONLY when the relationship is clear and meaningful. Two nodes being about
   the same topic is NOT a relationship. Every edge needs a "reason" naming
   the specific substantive connection; generic reasons will be discarded.

2. "tensions": genuine contradictions only. Two claims that cannot both be
   true, or evidence that directly conflicts with a claim. Differences of
   phrasing, emphasis, or scope are NOT contradictions. A missed tension is
   cheaper than a false one.

3. "status_updates": existing nodes whose status should change given the new
   information (for example an assumption that is now challenged, or a claim
   that is now supported). Give the reason.

4. "gaps": topics the new document raises that the graph has no coverage of
   at all. These become new unsubstantiated nodes, distinguishing "we don't
   know" from "we know and disagree."

5. "narrative": two or three sentences describing how this document changed
   the graph, written for the project's human reader.

Respond ONLY with valid JSON:
{
  "edges": [{"type": "supports", "source_id": "...", "target_id": "...", "strength": 0.8, "reason": "..."}],
  "tensions": [{"content": "...", "severity": "high", "node_ids": ["...", "..."], "explanation": "..."}],
  "status_updates": [{"node_id": "...", "new_status": "...", "reason": "..."}],
  "gaps": [{"content": "...", "reason": "..."}],
  "narrative": "..."
}`)

	return b.String()
}

func writeNodes(b *strings.Builder, nodes []*graph.Node) {
	for _, node := range nodes {
		fmt.Fprintf(b, "- id=%s type=%s status=%s: %s\n", node.ID, node.Type, node.Status, node.Content)
	}
}
