package expander

import (
	"fmt"
	"strings"
)

const translateSystemPrompt = `You translate research questions into English for academic database search.
Reply with the English translation only. Do not answer the question and do not add commentary.`

const expandSystemPrompt = `You are a search specialist for academic literature databases such as
Semantic Scholar, arXiv and PubMed. You rephrase research questions into
short, keyword-dense search queries that surface relevant peer-reviewed work.`

func buildExpandPrompt(q string, maxAlternatives int) string {
	var sb strings.Builder

	sb.WriteString("Write alternative search queries for the following research question. ")
	sb.WriteString("Use synonyms and domain-specific terminology a researcher would search for.\n\n")
	sb.WriteString(fmt.Sprintf("Return between 2 and %d alternatives as a JSON array of strings, ", maxAlternatives))
	sb.WriteString("with no other text.\n\n")
	sb.WriteString("Question:\n")
	sb.WriteString("---\n")
	sb.WriteString(q)
	sb.WriteString("\n---")

	return sb.String()
}
