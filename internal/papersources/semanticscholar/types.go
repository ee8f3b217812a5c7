// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// It implements papersources.PaperSource over the /paper/search endpoint and
// normalizes every hit into a domain.PaperRecord.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse represents the response from the paper search endpoint.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page of results.
	Next int `json:"next"`

	// Data contains the papers returned by the search.
	Data []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the search response.
// Every field may be null in the upstream payload.
type PaperResult struct {
	PaperID        string       `json:"paperId"`
	Title          string       `json:"title"`
	Abstract       string       `json:"abstract"`
	Year           int          `json:"year"`
	Authors        []Author     `json:"authors"`
	CitationCount  int          `json:"citationCount"`
	ReferenceCount int          `json:"referenceCount"`
	URL            string       `json:"url"`
	ExternalIDs    *ExternalIDs `json:"externalIds,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI    string `json:"DOI,omitempty"`
	ArXiv  string `json:"ArXiv,omitempty"`
	PubMed string `json:"PubMed,omitempty"`
}

// Author represents a paper author.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
