package judge

import (
	"strings"

	"github.com/joelkehle/patentscout/internal/index"
)

const DefaultOllamaModel = "llama3.1:8b"

func buildPrompt(query string, cand index.Candidate) string {
	var b strings.Builder
	b.WriteString(`You are acting as a PATENT ATTORNEY performing prior-art relevance analysis.

Your goal is to determine how relevant the following patent is as prior art to the user's invention.

Think like an experienced patent attorney:
- Identify the main inventive concepts and claimed features in the USER DESCRIPTION.
- Identify the field of endeavor and the technical problem being solved.
- Compare the CANDIDATE PATENT against these features.
- Consider whether it could anticipate (teach all essential elements) or render the invention obvious (teach analogous features in a similar context).
- Penalize cases where the candidate is from a different domain or use case, unless adaptation would be straightforward for someone skilled in the art.

Use only the provided text. Be conservative in your scoring.

SCORING GUIDELINES:
0-30: Different field or no meaningful similarity.
31-60: Some overlapping concepts but missing key features or context.
61-85: Strong technical overlap or analogous art.
86-100: Highly relevant prior art that teaches or closely anticipates the same invention.

OUTPUT FORMAT (STRICT JSON ONLY):
{
  "score": <integer from 0 to 100>,
  "reason": "<one short sentence explaining why this score was given>"
}

USER DESCRIPTION:
`)
	b.WriteString(query)
	b.WriteString("\n\nCANDIDATE PATENT:\nTitle: ")
	b.WriteString(cand.Title)
	b.WriteString("\nAbstract: ")
	b.WriteString(cand.Abstract)
	b.WriteString("\n")
	return b.String()
}
