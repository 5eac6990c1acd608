package assist

import "fmt"

func extractTermsPrompt(description string) string {
	return fmt.Sprintf(`You are a patent search specialist. Extract the key technical search terms from the invention description below.

Respond with ONLY a JSON object in this exact format, no other text:
{"search_terms": "<comma-separated technical terms>"}

INVENTION DESCRIPTION:
%s`, description)
}

func relatedTermsPrompt(term string) string {
	return fmt.Sprintf(`You are a patent search specialist. List up to %d technical terms closely related to the term below, as used in patent literature.

Respond with ONLY a JSON array of strings, no other text. Example: ["term one", "term two"]

TERM: %s`, relatedTermsLimit, term)
}

func describePrompt(idea string) string {
	return fmt.Sprintf(`You are a patent attorney drafting an invention disclosure. Write a clear, technical description of the invention idea below, suitable for a prior art search. Two to four paragraphs, plain prose, no headings.

IDEA:
%s`, idea)
}
