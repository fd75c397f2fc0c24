package extraction

import (
	"fmt"
)

// maxInputChars bounds how much document text is sent to the model. Longer
// documents are truncated to their leading window.
const maxInputChars = 24000

func buildPrompt(title, text string) string {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	return fmt.Sprintf(`You are extracting discrete knowledge units from a document.

Document title: %q

Document text:
---
%s
---

Extract:
- 3 to 7 claims: factual assertions the document commits to
- 2 to 5 evidence items: data, citations, or observations offered in support
- 1 to 3 implicit assumptions: unstated premises the document relies on

For every entry provide:
- "content": the knowledge unit, restated as one self-contained sentence
- "status": a proposed status (claims: unsubstantiated|supported|disputed|refuted;
  evidence: unverified|verified|disputed; assumptions: untested|confirmed|challenged|refuted)
- "quote": the exact source passage, quoted verbatim from the text
- "location": a short hint such as a section heading, page, or paragraph number
- "reason": one sentence explaining why you classified it as a claim, evidence, or assumption

Respond ONLY with valid JSON:
{
  "claims": [{"content": "...", "status": "...", "quote": "...", "location": "...", "reason": "..."}],
  "evidence": [{"content": "...", "status": "...", "quote": "...", "location": "...", "reason": "..."}],
  "assumptions": [{"content": "...", "status": "...", "quote": "...", "location": "...", "reason": "..."}],
  "summary": "two sentences describing what the document covers"
}`, title, text)
}
