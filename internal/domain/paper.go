package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SourceType identifies the academic search provider a record came from.
// The values double as the display names carried in PaperRecord.Source.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "Semantic Scholar"
	SourceTypeArXiv           SourceType = "arXiv"
	SourceTypePubMed          SourceType = "PubMed"
	SourceTypeCORE            SourceType = "CORE"
)

// Sentinel values used when a provider omits a field.
const (
	// UntitledPaper replaces a missing or blank title.
	UntitledPaper = "Untitled"

	// AbstractUnavailable replaces a missing or blank abstract.
	AbstractUnavailable = "Abstract not available"

	// YearUnknown replaces a missing or unparsable publication year.
	YearUnknown = "unknown"
)

// PaperRecord is a normalized academic paper.
//
// Records produced by different adapters are structurally identical once
// Normalize has been applied, so everything downstream of the adapters is
// source-agnostic.
type PaperRecord struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Abstract       string     `json:"abstract"`
	Authors        []string   `json:"authors"`
	Year           string     `json:"year"`
	CitationCount  int        `json:"citationCount"`
	ReferenceCount int        `json:"referenceCount"`
	Link           string     `json:"link"`
	Source         SourceType `json:"source"`
	RelevanceScore float64    `json:"relevanceScore"`
}

// Normalize fills every missing field with its documented fallback.
// It trims surrounding whitespace, drops blank author names and clamps
// negative counts to zero. It is safe to call more than once.
func (p *PaperRecord) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		p.Title = UntitledPaper
	}

	p.Abstract = strings.TrimSpace(p.Abstract)
	if p.Abstract == "" {
		p.Abstract = AbstractUnavailable
	}

	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if name := strings.TrimSpace(a); name != "" {
			authors = append(authors, name)
		}
	}
	p.Authors = authors

	p.Year = strings.TrimSpace(p.Year)
	if p.Year == "" {
		p.Year = YearUnknown
	}

	if p.CitationCount < 0 {
		p.CitationCount = 0
	}
	if p.ReferenceCount < 0 {
		p.ReferenceCount = 0
	}

	p.Link = strings.TrimSpace(p.Link)

	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
}

// YearInt returns the publication year as an integer.
// The second return value is false for the unknown sentinel or any value
// that is not a plain number.
func (p PaperRecord) YearInt() (int, bool) {
	if p.Year == "" || p.Year == YearUnknown {
		return 0, false
	}
	y, err := strconv.Atoi(p.Year)
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// HasAbstract reports whether the record carries a real abstract.
func (p PaperRecord) HasAbstract() bool {
	return p.Abstract != "" && p.Abstract != AbstractUnavailable
}

// FormatYear renders a numeric year reported by a provider. Zero or negative
// values map to YearUnknown.
func FormatYear(year int) string {
	if year <= 0 {
		return YearUnknown
	}
	return strconv.Itoa(year)
}

// ClonePapers returns a deep copy of the slice so callers can hand out
// records without sharing the backing arrays.
func ClonePapers(papers []PaperRecord) []PaperRecord {
	if papers == nil {
		return nil
	}
	out := make([]PaperRecord, len(papers))
	for i, p := range papers {
		p.Authors = append([]string(nil), p.Authors...)
		if p.Authors == nil {
			p.Authors = []string{}
		}
		out[i] = p
	}
	return out
}

// DOIURL turns a bare DOI into a resolvable link.
func DOIURL(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return doi
	}
	return "https://doi.org/" + doi
}
