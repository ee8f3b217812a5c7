// Package core provides a client for the CORE v3 open-access aggregator API.
//
// CORE returns loosely typed records: authors arrive either as plain strings
// or as {"name": ...} objects, and ids may be numbers or strings. The types
// in this file absorb those variations so that a single odd field never
// drops a record.
//
// API Documentation: https://api.core.ac.uk/docs/v3
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// SearchResponse represents the response from the /search/works endpoint.
type SearchResponse struct {
	TotalHits int    `json:"totalHits"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	Results   []Work `json:"results"`
}

// Work is a single CORE record.
type Work struct {
	ID            FlexibleID      `json:"id"`
	Title         string          `json:"title"`
	Abstract      string          `json:"abstract"`
	Authors       FlexibleAuthors `json:"authors"`
	YearPublished FlexibleInt     `json:"yearPublished"`
	CitationCount FlexibleInt     `json:"citationCount"`
	DOI           string          `json:"doi"`
	DownloadURL   string          `json:"downloadUrl"`
	Links         []Link          `json:"links"`
}

// Link is a typed link attached to a work ("display", "download", ...).
type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ErrorResponse represents an error body from the CORE API.
type ErrorResponse struct {
	Message string `json:"message"`
}

// FlexibleID accepts a JSON number or string.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleID(n.String())
		return nil
	}
	// Anything else (objects, arrays) is ignored.
	*f = ""
	return nil
}

// FlexibleInt accepts a JSON number, a numeric string or null. Unparsable
// values decode to zero instead of failing the whole response.
type FlexibleInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*f = FlexibleInt(v)
		} else if fv, err := n.Float64(); err == nil {
			*f = FlexibleInt(int(fv))
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = FlexibleInt(v)
		}
	}
	return nil
}

// FlexibleAuthors decodes an author list whose entries are either plain
// strings or objects carrying a "name" field.
type FlexibleAuthors []string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleAuthors) UnmarshalJSON(data []byte) error {
	*f = FlexibleAuthors{}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// null, a bare string or an object: try a single author before giving up.
		if name := decodeAuthor(data); name != "" {
			*f = FlexibleAuthors{name}
		}
		return nil
	}

	names := make(FlexibleAuthors, 0, len(raw))
	for _, item := range raw {
		if name := decodeAuthor(item); name != "" {
			names = append(names, name)
		}
	}
	*f = names
	return nil
}

func decodeAuthor(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}
