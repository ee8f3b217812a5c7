// Package citation assigns short citation keys to papers and renders the
// citation blocks that ground the model's analysis and answer.
package citation

import (
	"strings"

	"github.com/helixir/research-answer-service/internal/domain"
)

const (
	unknownAuthor = "Unknown"
	noDate        = "n.d."
)

// Key returns the citation key of p: the first author's surname followed by
// the year, e.g. "Doudna2012". The surname is the last whitespace-separated
// token of the first author.
func Key(p domain.PaperRecord) string {
	return surname(p.Authors) + year(p.Year)
}

func surname(authors []string) string {
	if len(authors) == 0 {
		return unknownAuthor
	}
	fields := strings.Fields(authors[0])
	if len(fields) == 0 {
		return unknownAuthor
	}
	return fields[len(fields)-1]
}

func year(y string) string {
	y = strings.TrimSpace(y)
	if y == "" || y == domain.YearUnknown {
		return noDate
	}
	return y
}

// BuildKeys returns one entry per paper in input order.
func BuildKeys(papers []domain.PaperRecord) []domain.CitationEntry {
	entries := make([]domain.CitationEntry, 0, len(papers))
	for _, p := range papers {
		entries = append(entries, domain.CitationEntry{
			PaperRecord: p,
			CitationKey: Key(p),
		})
	}
	return entries
}

// RenderBlock renders one entry as the block the model cites from.
func RenderBlock(e domain.CitationEntry) string {
	authors := strings.Join(e.Authors, ", ")
	if authors == "" {
		authors = unknownAuthor
	}

	var sb strings.Builder
	sb.WriteString("Citation [")
	sb.WriteString(e.CitationKey)
	sb.WriteString("]:\nTitle: ")
	sb.WriteString(e.Title)
	sb.WriteString("\nAbstract: ")
	sb.WriteString(e.Abstract)
	sb.WriteString("\nAuthors: ")
	sb.WriteString(authors)
	sb.WriteString("\nYear: ")
	sb.WriteString(e.Year)
	return sb.String()
}

// RenderBlocks renders entries separated by a blank line.
func RenderBlocks(entries []domain.CitationEntry) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, RenderBlock(e))
	}
	return strings.Join(blocks, "\n\n")
}

// Mapping returns the key-to-metadata list shown next to an answer, in
// entry order.
func Mapping(entries []domain.CitationEntry) []domain.CitationMapping {
	out := make([]domain.CitationMapping, 0, len(entries))
	for _, e := range entries {
		authors := e.Authors
		if authors == nil {
			authors = []string{}
		}
		out = append(out, domain.CitationMapping{
			Key:     e.CitationKey,
			Title:   e.Title,
			Authors: authors,
			Year:    e.Year,
			Link:    e.Link,
			Source:  e.Source,
		})
	}
	return out
}
