package pipeline

import (
	"fmt"
	"strings"

	"github.com/helixir/research-answer-service/internal/domain"
)

// Process step labels reported in Result.ProcessSteps.
var stageLabels = map[domain.Stage]string{
	domain.StageEvaluating:       "Evaluated whether the question needs research",
	domain.StageGeneratingDirect: "Answered from general knowledge",
	domain.StageRetrieving:       "Searched academic databases",
	domain.StageFiltering:        "Selected the most relevant papers",
	domain.StageAnalyzing:        "Analyzed the selected papers",
	domain.StageGeneratingCited:  "Wrote a cited answer",
}

const (
	directAnswerNote = "no citations were required"
	noPapersTemplate = "No academic papers were found for %q. Try rephrasing the question or using more general terms."
)

const evaluateSystemPrompt = `You are a research assistant deciding how to answer a question.
If the question can be answered accurately from general knowledge (arithmetic,
definitions, well-established facts), reply with:
{"canAnswer": true, "answer": "<short answer>"}
If it needs support from academic literature, reply with:
{"canAnswer": false, "queryWord": "<concise search query for academic databases>"}
Reply with the JSON object only.`

const directSystemPrompt = `You are a knowledgeable research assistant. Answer the question clearly
and accurately. Be concise and do not invent references.`

const analysisSystemPrompt = `You are a research analyst. You read paper summaries and extract the
findings that matter for a research question. Only use information present
in the summaries and always refer to a paper by its citation key in square
brackets, for example [Smith2020].`

const answerSystemPrompt = `You are a research assistant writing an evidence-based answer.
Ground every claim strictly in the provided analysis and cite the supporting
papers with their citation keys in square brackets, for example [Smith2020].
Do not introduce claims that the analysis does not support and do not cite
keys that are not listed.`

func buildAnalysisPrompt(question, blocks string) string {
	var sb strings.Builder

	sb.WriteString("Research question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nPapers:\n\n")
	sb.WriteString(blocks)
	sb.WriteString("\n\nFor each paper, list its key findings relevant to the question, ")
	sb.WriteString("then write a short synthesis of how the papers relate to each other.")

	return sb.String()
}

func buildAnswerPrompt(question, analysis string, entries []domain.CitationEntry) string {
	var sb strings.Builder

	sb.WriteString("Research question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nPaper analysis:\n")
	sb.WriteString(analysis)
	sb.WriteString("\n\nAvailable citations:\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s (%s)\n", e.CitationKey, e.Title, e.Year))
	}
	sb.WriteString("\nWrite a well-structured answer to the question based only on the analysis above.")

	return sb.String()
}
